package httpx

import (
	"net/http"

	"github.com/unistock-erp/unistock-erp/internal/shared"
)

// RespondError maps domain error kinds to HTTP responses using RFC7807.
// System errors carry no internal detail; the client gets the generic message.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	detail := shared.UserSafeMessage(err)
	switch kind {
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validasi Gagal", detail, string(kind))
	case shared.KindAuthorization:
		Problem(w, http.StatusForbidden, "Akses Ditolak", detail, string(kind))
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Tidak Ditemukan", detail, string(kind))
	case shared.KindInvalidState:
		Problem(w, http.StatusConflict, "Status Tidak Valid", detail, string(kind))
	case shared.KindInsufficientStock:
		Problem(w, http.StatusConflict, "Stok Tidak Mencukupi", detail, string(kind))
	case shared.KindConstraint:
		Problem(w, http.StatusConflict, "Data Masih Digunakan", detail, string(kind))
	default:
		Problem(w, http.StatusInternalServerError, "Kesalahan Internal", detail, string(shared.KindSystem))
	}
}
