package updatelog

import (
	"net/http"
	"syscall"

	"github.com/bazaarml/controlplane/internal/httpserver"
)

// DiskGuard rejects update-log writes with 507 Insufficient Storage once
// free space on the bazaar filesystem drops below minFreeBytes, rather
// than accepting a write that fsync would then fail to complete.
func DiskGuard(bazaarDir string, minFreeBytes uint64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var stat syscall.Statfs_t
			if err := syscall.Statfs(bazaarDir, &stat); err == nil {
				free := stat.Bavail * uint64(stat.Bsize)
				if free < minFreeBytes {
					httpserver.RespondErr(w, http.StatusInsufficientStorage, "insufficient disk space to accept this write")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
