package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/formbricks/forms/internal/api/response"
)

// pathID parses the {id} path value. On failure it writes a 400 and returns false.
func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		response.RespondBadRequest(w, what+" ID is required")

		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")

		return uuid.Nil, false
	}

	return id, true
}
