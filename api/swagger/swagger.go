package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "VolunHub Portal API",
        "description": "Enrollment lifecycle and hour accrual for community-service projects",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token lifecycle"},
        {"name": "Projects", "description": "Community-service project catalogue"},
        {"name": "Enrollments", "description": "Volunteer enrollment lifecycle"},
        {"name": "Activities", "description": "Per-project activity ledger and certification"},
        {"name": "Hours", "description": "Derived hour totals and progress"},
        {"name": "Notifications", "description": "Recipient notification feed"},
        {"name": "Exports", "description": "Hour statements and service certificates"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token pair issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "New token pair"},
                    "401": {"description": "Invalid refresh token"}
                }
            }
        },
        "/projects": {
            "get": {
                "tags": ["Projects"],
                "summary": "List projects",
                "responses": {"200": {"description": "Project page"}}
            },
            "post": {
                "tags": ["Projects"],
                "summary": "Register a project (admin)",
                "responses": {
                    "201": {"description": "Project created"},
                    "403": {"description": "Admin role required"}
                }
            }
        },
        "/projects/{id}": {
            "get": {
                "tags": ["Projects"],
                "summary": "Get a project",
                "responses": {
                    "200": {"description": "Project"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Projects"],
                "summary": "Update a project (admin)",
                "responses": {"200": {"description": "Updated project"}}
            },
            "delete": {
                "tags": ["Projects"],
                "summary": "Delete a project (admin)",
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments (admin)",
                "responses": {"200": {"description": "Enrollment page"}}
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Submit an enrollment application",
                "responses": {
                    "201": {"description": "Pending enrollment created"},
                    "409": {"description": "Already enrolled or project closed"}
                }
            }
        },
        "/projects/{id}/enrollments/{volunteerId}": {
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Withdraw an enrollment",
                "responses": {"204": {"description": "Withdrawn (idempotent)"}}
            }
        },
        "/projects/{id}/enrollments/{volunteerId}/approve": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Approve a pending enrollment (admin)",
                "responses": {
                    "200": {"description": "Approved enrollment"},
                    "409": {"description": "Not in a reviewable state"}
                }
            }
        },
        "/projects/{id}/enrollments/{volunteerId}/reject": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Reject a pending enrollment with a reason (admin)",
                "responses": {
                    "200": {"description": "Rejected enrollment"},
                    "400": {"description": "Reason required"},
                    "409": {"description": "Not in a reviewable state"}
                }
            }
        },
        "/projects/{id}/activities": {
            "get": {
                "tags": ["Activities"],
                "summary": "List a project's activities",
                "responses": {"200": {"description": "Activity list with completion sets"}}
            }
        },
        "/activities": {
            "post": {
                "tags": ["Activities"],
                "summary": "Register an activity (admin)",
                "responses": {
                    "201": {"description": "Activity created"},
                    "422": {"description": "Hours exceed project capacity"}
                }
            }
        },
        "/activities/{id}/certify": {
            "put": {
                "tags": ["Activities"],
                "summary": "Replace the certified completion set (admin)",
                "responses": {"200": {"description": "Activity with new completion set"}}
            }
        },
        "/volunteers/{volunteerId}/hours": {
            "get": {
                "tags": ["Hours"],
                "summary": "A volunteer's accrued hours across projects",
                "responses": {"200": {"description": "Hour summary"}}
            }
        },
        "/projects/{id}/progress": {
            "get": {
                "tags": ["Hours"],
                "summary": "Certified progress for a project",
                "responses": {"200": {"description": "Progress snapshot"}}
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the current user's notifications",
                "responses": {"200": {"description": "Notification page"}}
            }
        },
        "/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Request an hour statement or service certificate",
                "responses": {"202": {"description": "Job accepted"}}
            }
        },
        "/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Poll an export job",
                "responses": {"200": {"description": "Job status with result URL when finished"}}
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
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
