package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"langexam/internal/middleware"
	"langexam/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

type refundRequest struct {
	EntryID string `json:"entry_id" validate:"required"`
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req refundRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.billing.Refund(r.Context(), adminID, req.EntryID)
	if err != nil {
		respondServiceError(w, err, "refund failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "refunded",
		"reversal_id": result.ReversalID,
		"user_id":     result.UserID,
		"credits":     result.Amount,
	})
}

type grantCreditsRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req grantCreditsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := h.billing.Grant(r.Context(), adminID, req.UserID, req.Amount, req.Reason)
	if err != nil {
		respondServiceError(w, err, "grant failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"status":  "granted",
		"user_id": req.UserID,
		"credits": balance,
	})
}

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginate(r)
	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load users")
		return
	}
	normalized := make([]map[string]any, 0, len(users))
	for _, user := range users {
		normalized = append(normalized, map[string]any{
			"id":         user.ID,
			"username":   user.Username,
			"email":      user.Email,
			"credits":    user.Credits,
			"disabled":   user.Disabled,
			"created_at": user.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

type disableUserRequest struct {
	Disabled bool `json:"disabled"`
}

func (h *Handler) DisableUser(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	targetID := chi.URLParam(r, "id")
	var req disableUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.users.SetDisabled(r.Context(), tx, targetID, req.Disabled); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"target_user_id": targetID,
			"disabled":       req.Disabled,
		})
		return h.audit.Log(r.Context(), tx, adminID, "set_disabled", "user", targetID, string(data))
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to update user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": targetID, "disabled": req.Disabled})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginate(r)
	logs, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// Reconcile reports per-user drift between the cached credits column and the
// ledger sum. Both are written in the same transaction everywhere, so a
// nonzero difference means a bug or manual tampering.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	type reconRow struct {
		UserID        string `db:"user_id"`
		LedgerSum     int64  `db:"ledger_sum"`
		CachedCredits int64  `db:"cached_credits"`
		Difference    int64  `db:"difference"`
	}
	var rows []reconRow
	query := `
		SELECT u.id AS user_id,
		       COALESCE(SUM(l.amount), 0) AS ledger_sum,
		       u.credits AS cached_credits,
		       (u.credits - COALESCE(SUM(l.amount), 0)) AS difference
		FROM users u
		LEFT JOIN ledger_entries l ON l.user_id = u.id
		GROUP BY u.id, u.credits
		ORDER BY u.id
	`
	if err := h.reconcileDB.SelectContext(r.Context(), &rows, query); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile credits")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"user_id":        row.UserID,
			"ledger_sum":     row.LedgerSum,
			"cached_credits": row.CachedCredits,
			"difference":     row.Difference,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

type grantRoleRequest struct {
	AdminUserID string `json:"admin_user_id" validate:"required"`
	Role        string `json:"role" validate:"required,oneof=CanManageContent CanRefund CanGrantCredits CanViewUsers"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req grantRoleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	isAdmin, targetSuper, err := h.admin.IsAdmin(r.Context(), req.AdminUserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify target admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if targetSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"admin_user_id": req.AdminUserID,
			"role":          req.Role,
		})
		return h.audit.Log(r.Context(), tx, userID, "grant_role", "admin_role", req.AdminUserID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

type promoteRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req promoteRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	targetUserID, err := h.resolveUserID(r, req.Identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, targetUserID, false, &userID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"target_user_id": targetUserID,
		})
		return h.audit.Log(r.Context(), tx, userID, "promote_admin", "admin", targetUserID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

// resolveUserID accepts an email or a raw user id.
func (h *Handler) resolveUserID(r *http.Request, identifier string) (string, error) {
	if strings.Contains(identifier, "@") {
		user, err := h.users.GetByEmail(r.Context(), strings.ToLower(identifier))
		if err != nil {
			return "", err
		}
		return user.ID, nil
	}
	user, err := h.users.GetByID(r.Context(), identifier)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
