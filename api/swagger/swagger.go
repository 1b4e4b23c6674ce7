package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Tutor Scheduler API",
        "description": "Lesson booking, recurring slots and availability for a tutoring marketplace.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Bookings", "description": "Single lessons and weekly recurring slots"},
        {"name": "Availability", "description": "Weekly availability, blocked time and open windows"},
        {"name": "Lessons", "description": "Lesson reads, optimistic edits and exports"},
        {"name": "Jobs", "description": "Background jobs"}
    ],
    "paths": {
        "/bookings": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Book a lesson",
                "description": "Books a single lesson, or a weekly recurring slot when isRecurring is true.",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/BookingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "NOT_AUTHORIZED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "NOT_AVAILABLE, ALREADY_BOOKED or SLOT_TAKEN", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "OUT_OF_BOOKING_WINDOW", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "TRANSIENT_STORE_ERROR", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/recurring-slots/{id}": {
            "get": {
                "tags": ["Bookings"],
                "summary": "Get a recurring slot",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "NOT_FOUND", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/recurring-slots/{id}/cancel": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Cancel a recurring slot",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CancelSlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/availability": {
            "get": {
                "tags": ["Availability"],
                "summary": "Open windows of a teacher on a day",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "query", "name": "date", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Availability"],
                "summary": "Replace a teacher's weekly availability",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/ReplaceAvailabilityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "VALIDATION_ERROR", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/blocked-times": {
            "post": {
                "tags": ["Availability"],
                "summary": "Block a time range for a teacher",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateBlockedTimeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/blocked-times/{blockedId}": {
            "delete": {
                "tags": ["Availability"],
                "summary": "Remove a blocked time range",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "path", "name": "blockedId", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/teachers/{id}/lessons": {
            "get": {
                "tags": ["Lessons"],
                "summary": "List a teacher's lessons",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "query", "name": "from", "type": "string"},
                    {"in": "query", "name": "to", "type": "string"},
                    {"in": "query", "name": "status", "type": "string", "enum": ["SCHEDULED", "COMPLETED", "CANCELLED"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/lessons/export": {
            "get": {
                "tags": ["Lessons"],
                "summary": "Export a teacher's lessons",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "query", "name": "format", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/lessons/{id}": {
            "get": {
                "tags": ["Lessons"],
                "summary": "Get a lesson",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Lessons"],
                "summary": "Update lesson notes, homework or status",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/UpdateLessonRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "VERSION_CONFLICT", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/jobs/lesson-generation": {
            "post": {
                "tags": ["Jobs"],
                "summary": "Run the lesson generation job",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "NOT_AUTHORIZED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "BookingRequest": {
            "type": "object",
            "required": ["teacherId", "studentId", "date", "duration"],
            "properties": {
                "teacherId": {"type": "string"},
                "studentId": {"type": "string"},
                "date": {"type": "string", "example": "2025-01-13T14:00:00Z"},
                "duration": {"type": "integer", "enum": [30, 60]},
                "timezone": {"type": "string", "example": "Europe/Berlin"},
                "isRecurring": {"type": "boolean"},
                "monthlyRateCents": {"type": "integer"}
            }
        },
        "CancelSlotRequest": {
            "type": "object",
            "required": ["cancelDate"],
            "properties": {
                "cancelDate": {"type": "string", "example": "2025-01-15"},
                "reason": {"type": "string"}
            }
        },
        "AvailabilityWindow": {
            "type": "object",
            "required": ["dayOfWeek", "startTime", "endTime"],
            "properties": {
                "dayOfWeek": {"type": "integer", "minimum": 0, "maximum": 6},
                "startTime": {"type": "string", "example": "13:00"},
                "endTime": {"type": "string", "example": "17:00"},
                "isActive": {"type": "boolean"}
            }
        },
        "ReplaceAvailabilityRequest": {
            "type": "object",
            "properties": {
                "windows": {"type": "array", "items": {"$ref": "#/definitions/AvailabilityWindow"}}
            }
        },
        "CreateBlockedTimeRequest": {
            "type": "object",
            "required": ["startTime", "endTime"],
            "properties": {
                "startTime": {"type": "string", "format": "date-time"},
                "endTime": {"type": "string", "format": "date-time"},
                "reason": {"type": "string"}
            }
        },
        "UpdateLessonRequest": {
            "type": "object",
            "required": ["expectedVersion"],
            "properties": {
                "expectedVersion": {"type": "integer"},
                "notes": {"type": "string"},
                "homework": {"type": "string"},
                "status": {"type": "string", "enum": ["SCHEDULED", "COMPLETED", "CANCELLED"]}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
