// Package docs registers the OpenAPI description served under /swagger/.
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
        "/wallet/address": {
            "get": {
                "produces": ["application/json"],
                "tags": ["wallet"],
                "summary": "Get active address",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.AddressResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        },
        "/wallet/balance": {
            "get": {
                "description": "Gets the SOL balance of the active key",
                "produces": ["application/json"],
                "tags": ["wallet"],
                "summary": "Get wallet balance",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.BalanceResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        },
        "/wallet/generate": {
            "post": {
                "description": "Generates a new key, makes it active and saves it to the .cwt keystore",
                "produces": ["application/json"],
                "tags": ["wallet"],
                "summary": "Generate new wallet",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.GenerateResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        },
        "/wallet/send": {
            "post": {
                "description": "Sends SOL and waits for a terminal state or the timeout. 202 means still pending.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["wallet"],
                "summary": "Send SOL",
                "parameters": [
                    {
                        "description": "Transfer",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/model.SendRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.SubmissionResponse"}},
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/model.SubmissionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/model.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        },
        "/wallet/submissions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["wallet"],
                "summary": "Get submission",
                "parameters": [
                    {"type": "string", "description": "Transaction signature", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.SubmissionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        },
        "/wallet/submissions/{id}/rebroadcast": {
            "post": {
                "produces": ["application/json"],
                "tags": ["wallet"],
                "summary": "Rebroadcast a pending submission",
                "parameters": [
                    {"type": "string", "description": "Transaction signature", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.SubmissionResponse"}},
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/model.SubmissionResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "model.AddressResponse": {
            "type": "object",
            "properties": {"address": {"type": "string"}}
        },
        "model.BalanceResponse": {
            "type": "object",
            "properties": {
                "address": {"type": "string"},
                "lamports": {"type": "integer"},
                "sol": {"type": "string"},
                "slot": {"type": "integer"}
            }
        },
        "model.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "model.GenerateResponse": {
            "type": "object",
            "properties": {
                "address": {"type": "string"},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "model.SendRequest": {
            "type": "object",
            "properties": {
                "amount": {"type": "string"},
                "memo": {"type": "string"},
                "timeoutSeconds": {"type": "integer"},
                "toAddress": {"type": "string"}
            }
        },
        "model.SubmissionResponse": {
            "type": "object",
            "properties": {
                "amount": {"type": "string"},
                "errorCode": {"type": "string"},
                "expiresAt": {"type": "string"},
                "from": {"type": "string"},
                "reason": {"type": "string"},
                "requestId": {"type": "string"},
                "retryCount": {"type": "integer"},
                "state": {"type": "string"},
                "submittedAt": {"type": "string"},
                "to": {"type": "string"},
                "txId": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Local Solana wallet API",
	Description:      "Balance, transfers and submission tracking for a local Solana wallet.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
