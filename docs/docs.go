// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/users/register": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Register a user",
                "parameters": [
                    {"type": "string", "name": "fullname", "in": "formData", "required": true},
                    {"type": "string", "name": "email", "in": "formData", "required": true},
                    {"type": "string", "name": "username", "in": "formData", "required": true},
                    {"type": "string", "name": "password", "in": "formData", "required": true},
                    {"type": "file", "name": "avatar", "in": "formData", "required": true},
                    {"type": "file", "name": "coverImage", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "User registered", "schema": {"$ref": "#/definitions/types.ApiResponse"}},
                    "400": {"description": "Missing fields or avatar", "schema": {"$ref": "#/definitions/types.ApiResponse"}},
                    "409": {"description": "Username or email taken", "schema": {"$ref": "#/definitions/types.ApiResponse"}}
                }
            }
        },
        "/users/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Log in",
                "parameters": [
                    {"name": "credentials", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Logged in", "schema": {"$ref": "#/definitions/types.ApiResponse"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/types.ApiResponse"}}
                }
            }
        },
        "/users/refresh-token": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Rotate tokens",
                "parameters": [
                    {"name": "token", "in": "body", "schema": {"$ref": "#/definitions/types.RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "Tokens refreshed", "schema": {"$ref": "#/definitions/types.ApiResponse"}},
                    "401": {"description": "Invalid or reused refresh token", "schema": {"$ref": "#/definitions/types.ApiResponse"}}
                }
            }
        },
        "/users/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Log out",
                "responses": {
                    "200": {"description": "Logged out", "schema": {"$ref": "#/definitions/types.ApiResponse"}}
                }
            }
        },
        "/users/change-password": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Change password",
                "parameters": [
                    {"name": "passwords", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.ChangePasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "Password changed", "schema": {"$ref": "#/definitions/types.ApiResponse"}},
                    "401": {"description": "Old password mismatch or unauthorized", "schema": {"$ref": "#/definitions/types.ApiResponse"}}
                }
            }
        },
        "/users/current-user": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "Current user", "schema": {"$ref": "#/definitions/types.ApiResponse"}}
                }
            }
        },
        "/users/update-account": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Update account details",
                "parameters": [
                    {"name": "account", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.UpdateAccountParams"}}
                ],
                "responses": {
                    "200": {"description": "Account updated", "schema": {"$ref": "#/definitions/types.ApiResponse"}},
                    "409": {"description": "Email taken", "schema": {"$ref": "#/definitions/types.ApiResponse"}}
                }
            }
        },
        "/users/avatar": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Replace avatar",
                "parameters": [
                    {"type": "file", "name": "avatar", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "Avatar updated", "schema": {"$ref": "#/definitions/types.ApiResponse"}}
                }
            }
        },
        "/users/cover-image": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Replace cover image",
                "parameters": [
                    {"type": "file", "name": "coverImage", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "Cover image updated", "schema": {"$ref": "#/definitions/types.ApiResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ApiResponse": {
            "type": "object",
            "properties": {
                "statusCode": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "success": {"type": "boolean"},
                "errors": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.LoginRequest": {
            "type": "object",
            "required": ["password"],
            "properties": {
                "username": {"type": "string", "example": "alice"},
                "email": {"type": "string", "example": "a@x.com"},
                "password": {"type": "string", "example": "secret1"}
            }
        },
        "types.RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refreshToken": {"type": "string"}
            }
        },
        "types.ChangePasswordRequest": {
            "type": "object",
            "required": ["oldPassword", "newPassword"],
            "properties": {
                "oldPassword": {"type": "string", "example": "secret1"},
                "newPassword": {"type": "string", "example": "secret2"}
            }
        },
        "types.UpdateAccountParams": {
            "type": "object",
            "properties": {
                "fullname": {"type": "string", "example": "Alice L."},
                "email": {"type": "string", "example": "alice@example.com"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Account Service API",
	Description:      "User registration, login and token rotation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
