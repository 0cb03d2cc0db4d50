package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/trial-eligibility-server/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS policy is enforced by the HTTP middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is one frame on the eligibility stream. Per-criterion
// frames carry a result; the final frame carries the verdict.
type streamMessage struct {
	Type     string                    `json:"type"` // "criterion" or "verdict"
	Sequence int                       `json:"sequence"`
	Result   *domain.EvaluationResult  `json:"result,omitempty"`
	Verdict  *domain.EligibilityResult `json:"verdict,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

// handleEligibilityStream upgrades to a websocket and streams each
// top-level criterion result as it is evaluated, followed by the final
// verdict. Long criterion lists against slow FHIR servers surface
// progress this way instead of one multi-second response.
func (s *Server) handleEligibilityStream(c *gin.Context) {
	trialID := c.Query("trial_id")
	patientID := c.Query("patient_id")
	if trialID == "" || patientID == "" {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "trial_id and patient_id are required", nil)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

	sequence := 0
	onResult := func(r *domain.EvaluationResult) {
		sequence++
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(streamMessage{
			Type:     "criterion",
			Sequence: sequence,
			Result:   r,
		}); err != nil {
			s.log.WithError(err).Warn("Failed to write stream frame")
		}
	}

	result, err := s.eligibility.CheckEligibilityStream(c.Request.Context(), trialID, patientID, onResult)

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"trial_id": trialID,
		}).Error("Streaming eligibility check failed")
		conn.WriteJSON(streamMessage{Type: "verdict", Sequence: sequence + 1, Error: err.Error()})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "evaluation failed"))
		return
	}

	if err := conn.WriteJSON(streamMessage{
		Type:     "verdict",
		Sequence: sequence + 1,
		Verdict:  result,
	}); err != nil {
		s.log.WithError(err).Warn("Failed to write verdict frame")
		return
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}
