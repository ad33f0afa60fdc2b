package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	err         error
	bucket      string
	key         string
	contentType string
	body        []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, content, 0o600))
	return p
}

func TestS3Uploader_Upload(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

	t.Run("Success", func(t *testing.T) {
		putter := &fakePutter{}
		u := newS3Uploader(putter, "media", "http://127.0.0.1:9000/media/", slog.Default())
		local := writeTemp(t, "avatar.PNG", png)

		res, err := u.Upload(context.Background(), local)

		require.NoError(t, err)
		assert.Equal(t, "media", putter.bucket)
		assert.Equal(t, "image/png", putter.contentType)
		assert.Equal(t, png, putter.body)
		assert.True(t, strings.HasPrefix(res.Key, "media/"))
		assert.True(t, strings.HasSuffix(res.Key, ".png"))
		assert.Equal(t, "http://127.0.0.1:9000/media/"+res.Key, res.URL)

		_, err = os.Stat(local)
		assert.True(t, os.IsNotExist(err), "local file removed after upload")
	})

	t.Run("FailureStillRemovesLocalFile", func(t *testing.T) {
		putter := &fakePutter{err: errors.New("access denied")}
		u := newS3Uploader(putter, "media", "http://cdn", slog.Default())
		local := writeTemp(t, "cover.png", png)

		res, err := u.Upload(context.Background(), local)

		assert.Nil(t, res)
		assert.Error(t, err)
		_, err = os.Stat(local)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		u := newS3Uploader(&fakePutter{}, "media", "http://cdn", slog.Default())

		_, err := u.Upload(context.Background(), "")

		assert.ErrorIs(t, err, ErrNoFile)
	})

	t.Run("MissingFile", func(t *testing.T) {
		u := newS3Uploader(&fakePutter{}, "media", "http://cdn", slog.Default())

		_, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.png"))

		assert.Error(t, err)
	})
}

func TestDiscard(t *testing.T) {
	local := writeTemp(t, "x.png", []byte("x"))

	Discard(local, "", filepath.Join(t.TempDir(), "never-existed"))

	_, err := os.Stat(local)
	assert.True(t, os.IsNotExist(err))
}
