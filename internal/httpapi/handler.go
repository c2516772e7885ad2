package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"eventgate/internal/apperr"
	"eventgate/internal/attendance"
	"eventgate/internal/auth"
	"eventgate/internal/registration"
	"eventgate/internal/staff"
)

// ServiceName is reported by the liveness probe.
const ServiceName = "ISTE Event Registration API"

type Handler struct {
	registrations *registration.Service
	attendance    *attendance.Service
	gate          *staff.Gate
	exposeErrors  bool
	log           zerolog.Logger
}

func NewHandler(regs *registration.Service, att *attendance.Service, gate *staff.Gate, exposeErrors bool, log zerolog.Logger) *Handler {
	return &Handler{
		registrations: regs,
		attendance:    att,
		gate:          gate,
		exposeErrors:  exposeErrors,
		log:           log,
	}
}

// ---------- Errors ----------

// fail writes err as the JSON error envelope. extra fields are merged in.
func (h *Handler) fail(c *gin.Context, err error, extra gin.H) {
	kind := apperr.KindOf(err)
	body := gin.H{}
	for k, v := range extra {
		body[k] = v
	}

	msg := "Internal server error"
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Msg
	}
	body["error"] = msg

	if kind == apperr.Internal {
		h.log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", c.GetString("request_id")).Msg("request failed")
		if h.exposeErrors {
			body["details"] = err.Error()
		} else {
			body["details"] = "Internal server error"
		}
	}
	c.JSON(apperr.Status(kind), body)
}

// ---------- Liveness ----------

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   ServiceName,
	})
}

// ---------- Registration ----------

func (h *Handler) Register(c *gin.Context) {
	var in registration.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, apperr.Wrap(apperr.Validation, "Invalid JSON body", err), nil)
		return
	}
	reg, err := h.registrations.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Registration successful",
		"userId":  reg.ID,
		"email":   "Confirmation email sent successfully",
	})
}

func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, apperr.New(apperr.Validation, "Invalid user ID"), nil)
		return
	}
	reg, err := h.registrations.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (h *Handler) ListRegistrations(c *gin.Context) {
	q := registration.Query{Search: c.Query("search")}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	page, err := h.registrations.List(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) Stats(c *gin.Context) {
	st, err := h.registrations.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ---------- Staff login ----------

type loginRequest struct {
	Credential string `json:"credential"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Wrap(apperr.Validation, "Google credential is required", err), nil)
		return
	}
	sess, err := h.gate.Login(c.Request.Context(), req.Credential)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Login successful",
		"token":     sess.Token,
		"expiresAt": sess.ExpiresAt,
		"user":      sess.User,
	})
}

func (h *Handler) Me(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	c.JSON(http.StatusOK, gin.H{"user": staff.User{ID: claims.ID, Email: claims.Email, Name: claims.Name}})
}

// ---------- Attendance ----------

// userID accepts a JSON number or a numeric string.
type userID int64

func (u *userID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	if len(b) == 0 || string(b) == "null" {
		*u = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*u = userID(n)
	return nil
}

type updateAttendanceRequest struct {
	UserID userID `json:"userId"`
}

func (h *Handler) UpdateAttendance(c *gin.Context) {
	var req updateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		h.fail(c, apperr.New(apperr.Validation, "User ID is required"), nil)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	reg, err := h.attendance.Mark(c.Request.Context(), int64(req.UserID), claims.Email)
	if err != nil {
		if apperr.Is(err, apperr.AlreadyMarked) {
			h.fail(c, err, gin.H{"user": reg})
			return
		}
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Attendance updated successfully",
		"user":    reg,
	})
}

type scanRequest struct {
	QRData string `json:"qrData"`
}

func (h *Handler) ScanQR(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.New(apperr.Validation, "QR code data is required"), nil)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	reg, err := h.attendance.Scan(c.Request.Context(), req.QRData, claims.Email)
	if err != nil {
		if apperr.Is(err, apperr.AlreadyMarked) {
			h.fail(c, err, gin.H{"user": reg.Summary()})
			return
		}
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Attendance marked successfully",
		"user":    reg.Summary(),
	})
}
