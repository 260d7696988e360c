// Package docs registers the OpenAPI description served under /swagger.
// Regenerate the full document with `swag init` after changing handler
// annotations.
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
        "/split-payments": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["split-payments"],
                "summary": "Create a split payment",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/docs.SplitPaymentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/docs.ErrorResponse"}}
                }
            }
        },
        "/individual-payments/{id}/charge": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["individual-payments"],
                "summary": "Start a card charge for one share",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/docs.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/docs.ErrorResponse"}}
                }
            }
        },
        "/refunds": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["refunds"],
                "summary": "Request a refund",
                "responses": {
                    "201": {"description": "Created"},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/docs.ErrorResponse"}}
                }
            }
        },
        "/webhooks/stripe": {
            "post": {
                "tags": ["webhooks"],
                "summary": "Receive processor events",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/docs.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "docs.ErrorResponse": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "example": "CONFLICT"},
                "code": {"type": "string", "example": "already_paid"},
                "message": {"type": "string", "example": "Payment already completed"},
                "details": {"type": "string"},
                "requestId": {"type": "string"}
            }
        },
        "docs.SplitPaymentResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string", "example": "pending"},
                "totalAmount": {"type": "integer", "example": 9000},
                "currency": {"type": "string", "example": "USD"},
                "displayTotal": {"type": "string", "example": "$90.00"},
                "paidCount": {"type": "integer", "example": 1}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "NomadCrew Payments API",
	Description:      "Split payments, individual charges and refunds for group bookings.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
