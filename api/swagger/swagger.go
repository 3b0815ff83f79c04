package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Study Plan API",
        "description": "Personalized study calendar engine: plan generation, spaced repetition and rescheduling",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Plans", "description": "Plan lifecycle and generation"},
        {"name": "Sessions", "description": "Session lifecycle"},
        {"name": "Agenda", "description": "Daily agenda view"}
    ],
    "paths": {
        "/plans": {
            "post": {
                "tags": ["Plans"],
                "summary": "Create a study plan",
                "description": "Persists the plan and queues asynchronous session generation.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePlanRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed"},
                    "409": {"description": "Owner already has an active plan"}
                }
            }
        },
        "/plans/{id}": {
            "get": {
                "tags": ["Plans"],
                "summary": "Get plan detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/{id}/jobs/{jobId}": {
            "get": {
                "tags": ["Plans"],
                "summary": "Poll a generation job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "jobId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/{id}/agenda": {
            "get": {
                "tags": ["Agenda"],
                "summary": "Daily agenda",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "type": "string", "description": "YYYY-MM-DD, defaults to today"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/{id}/rebalance": {
            "post": {
                "tags": ["Plans"],
                "summary": "Rebalance a plan",
                "description": "Regenerates all PENDING sessions from today onward.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Plan is not active"}
                }
            }
        },
        "/plans/{id}/sessions": {
            "put": {
                "tags": ["Plans"],
                "summary": "Apply a manual plan",
                "description": "Replaces PENDING sessions with a hand-built calendar. History survives.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyManualPlanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Daily capacity exceeded"}
                }
            }
        },
        "/plans/{id}/archive": {
            "post": {
                "tags": ["Plans"],
                "summary": "Archive a plan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Archived"}
                }
            }
        },
        "/plans/{id}/stats": {
            "get": {
                "tags": ["Plans"],
                "summary": "Plan session statistics",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/{id}/theme-stats": {
            "get": {
                "tags": ["Plans"],
                "summary": "Spaced-repetition state per theme",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/complete": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Complete a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CompleteSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session is no longer editable"}
                }
            }
        },
        "/sessions/{id}/skip": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Skip a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/SkipSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session is no longer editable"}
                }
            }
        },
        "/sessions/{id}/start": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Start a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/StartSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session is no longer editable"}
                }
            }
        }
    },
    "definitions": {
        "CreatePlanRequest": {
            "type": "object",
            "required": ["start_date", "exam_date", "weekly_schedule", "methodology", "theme_ids"],
            "properties": {
                "start_date": {"type": "string", "example": "2025-01-01"},
                "exam_date": {"type": "string", "example": "2025-06-01"},
                "weekly_schedule": {"type": "array", "items": {"type": "number"}, "example": [0, 2, 2, 2, 2, 2, 4]},
                "methodology": {"type": "string", "enum": ["ROTATION", "MONTHLY_BLOCKS", "CUSTOM_BLOCKS"]},
                "topics_per_day": {"type": "integer"},
                "theme_ids": {"type": "array", "items": {"type": "string"}},
                "custom_blocks": {"type": "array", "items": {"type": "object"}}
            }
        },
        "CompleteSessionRequest": {
            "type": "object",
            "properties": {
                "difficulty": {"type": "integer", "minimum": 0, "maximum": 5},
                "completed_hours": {"type": "number"},
                "notes": {"type": "string"}
            }
        },
        "SkipSessionRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "StartSessionRequest": {
            "type": "object",
            "properties": {
                "partial_hours": {"type": "number", "example": 0.5}
            }
        },
        "ApplyManualPlanRequest": {
            "type": "object",
            "required": ["sessions"],
            "properties": {
                "sessions": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "required": ["theme_id", "date", "hours", "type"],
                        "properties": {
                            "theme_id": {"type": "string"},
                            "date": {"type": "string", "example": "2025-01-10"},
                            "hours": {"type": "number", "example": 1.5},
                            "type": {"type": "string", "enum": ["STUDY", "REVIEW", "TEST", "SIMULATION"]},
                            "part_index": {"type": "integer"},
                            "notes": {"type": "string"}
                        }
                    }
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"type": "object"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
