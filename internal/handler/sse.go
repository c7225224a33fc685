package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/skycast/internal/middleware"
	"github.com/hitoshi/skycast/internal/result"
)

// sseHeartbeatInterval はアイドル時に送るコメント行の間隔。
// 中間プロキシにコネクションを切られないようにする。
var sseHeartbeatInterval = 15 * time.Second

// streamResults はCellの最新値をServer-Sent Eventsとして送り続ける。
// 接続直後に現在値を1件送り、以降は公開のたびに送る。読み遅れた場合は最新値のみが届く。
// renderはResultをイベントのdataに載せる値に変換する。
func streamResults[T any](w http.ResponseWriter, r *http.Request, cell *result.Cell[T], render func(result.Result[T]) any) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := rc.Flush(); err != nil {
		slog.Error("streaming not supported", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	updates, cancel := cell.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case res, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(render(res))
			if err != nil {
				slog.Error("failed to encode stream event", slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "event: result\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
