// Package docs registers the statlg OpenAPI document with swag. The document
// mirrors the annotations on the HTTP transport handlers.
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
        "/patterns": {
            "get": {
                "produces": ["application/json"],
                "tags": ["render"],
                "summary": "List phrase names",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Client token, required when configured",
                        "name": "X-Statlg-Token",
                        "in": "header"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Lower-cased phrase names, sorted",
                        "schema": {"type": "array", "items": {"type": "string"}}
                    },
                    "401": {
                        "description": "Missing or invalid token",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/render": {
            "post": {
                "description": "Looks up the named phrase for the request locale and variant constraints, applies the\nsubstitutions and returns the rendered text, short text and SSML, shaped by response_mode.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["render"],
                "summary": "Render a phrase",
                "parameters": [
                    {
                        "description": "Render request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/message.RenderRequest"}
                    },
                    {
                        "type": "string",
                        "description": "Client token, required when configured",
                        "name": "X-Statlg-Token",
                        "in": "header"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Rendered phrase",
                        "schema": {"$ref": "#/definitions/message.RenderResult"}
                    },
                    "400": {
                        "description": "Invalid request body",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    },
                    "401": {
                        "description": "Missing or invalid token",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    },
                    "422": {
                        "description": "Render failed; see error",
                        "schema": {"$ref": "#/definitions/message.RenderResult"}
                    }
                }
            }
        }
    },
    "definitions": {
        "message.RenderRequest": {
            "type": "object",
            "properties": {
                "client_id": {"type": "string"},
                "debug": {"type": "boolean"},
                "id": {"type": "string"},
                "locale": {"type": "string"},
                "pattern": {"type": "string"},
                "phrase_num": {"type": "integer"},
                "response_mode": {
                    "type": "string",
                    "enum": ["text", "ssml", "text+ssml"]
                },
                "substitutions": {"type": "object", "additionalProperties": {}},
                "user_id": {"type": "string"},
                "variants": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "message.RenderResult": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "extra_fields": {"type": "object", "additionalProperties": {"type": "string"}},
                "locale": {"type": "string"},
                "pattern": {"type": "string"},
                "request_id": {"type": "string"},
                "short_text": {"type": "string"},
                "spoken": {"type": "string"},
                "text": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "statlg render API",
	Description:      "Renders statistical LG phrases as text and SSML.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
