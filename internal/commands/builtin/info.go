package builtin

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/tbourn/go-wa-gateway/internal/commands"
	"github.com/tbourn/go-wa-gateway/internal/wa"
)

// Info returns the runtime pack: an info/runtime command reporting uptime
// and process vitals since start.
func Info(start time.Time) commands.Source {
	return commands.SourceFunc(func() []*commands.Descriptor {
		return []*commands.Descriptor{
			{
				Pattern:  "info",
				Aliases:  []string{"runtime", "uptime"},
				Desc:     "Show bot uptime and runtime details",
				Category: "general",
				Execute: func(ctx context.Context, t wa.Transport, inv *commands.Invocation) error {
					var m runtime.MemStats
					runtime.ReadMemStats(&m)
					text := fmt.Sprintf(
						"*%s*\nUptime: %s\nGo: %s\nGoroutines: %d\nHeap: %.1f MB",
						inv.BotName,
						formatUptime(time.Since(start)),
						runtime.Version(),
						runtime.NumGoroutine(),
						float64(m.HeapAlloc)/(1<<20),
					)
					return inv.Reply(ctx, t, text)
				},
			},
		}
	})
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// All bundles every stock pack in registration order.
func All(start time.Time) []commands.Source {
	return []commands.Source{Group(), AutoStatus(), Channels(), Info(start)}
}
