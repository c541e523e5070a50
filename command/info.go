package command

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"
)

// CommandStats counts calls of one command
type CommandStats struct {
	Name  string
	Calls int64
}

// Stats is a point-in-time snapshot of instance counters
type Stats struct {
	RunID   string
	Version string
	Port    int

	Uptime              time.Duration
	Keys                int64
	Expires             int64
	ConnectedClients    int
	BlockedClients      int
	TotalConnections    int64
	RejectedConnections int64
	CommandsProcessed   int64
	ErrorReplies        int64
	Scripts             int
	Commands            []CommandStats
}

// Stats returns a snapshot of the instance counters
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

func (d *Dispatcher) snapshot() Stats {
	st := Stats{
		RunID:               d.server.RunID,
		Version:             d.server.Version,
		Port:                d.server.Port,
		Uptime:              time.Since(d.started),
		Keys:                d.ks.KeyCount(),
		Expires:             d.ks.ExpiresCount(),
		ConnectedClients:    len(d.sessions),
		BlockedClients:      d.coord.Len(),
		TotalConnections:    d.conns,
		RejectedConnections: d.rejected,
		CommandsProcessed:   d.total,
		ErrorReplies:        d.errors,
		Commands:            make([]CommandStats, 0, len(d.cmdStats)),
	}
	if d.scripts != nil {
		st.Scripts = d.scripts.Len()
	}
	for _, cs := range d.cmdStats {
		st.Commands = append(st.Commands, *cs)
	}
	sort.Slice(st.Commands, func(i, j int) bool { return st.Commands[i].Name < st.Commands[j].Name })
	return st
}

var defaultSections = []string{"server", "clients", "memory", "stats", "keyspace"}

// renderInfo formats the INFO reply for the requested sections
func renderInfo(st Stats, sections []string) string {
	want := make(map[string]bool)
	if len(sections) == 0 {
		sections = []string{"default"}
	}
	for _, s := range sections {
		switch s = strings.ToLower(s); s {
		case "default":
			for _, name := range defaultSections {
				want[name] = true
			}
		case "all", "everything":
			for _, name := range defaultSections {
				want[name] = true
			}
			want["commandstats"] = true
		default:
			want[s] = true
		}
	}

	var b strings.Builder
	section := func(name, title string, fn func(add func(key string, value interface{}))) {
		if !want[name] {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\r\n")
		}
		fmt.Fprintf(&b, "# %s\r\n", title)
		fn(func(key string, value interface{}) {
			fmt.Fprintf(&b, "%s:%v\r\n", key, value)
		})
	}

	section("server", "Server", func(add func(string, interface{})) {
		add("redis_version", RedisVersion)
		add("birdisle_version", st.Version)
		add("redis_mode", "standalone")
		add("os", runtime.GOOS+" "+runtime.GOARCH)
		add("go_version", runtime.Version())
		add("process_id", os.Getpid())
		add("run_id", st.RunID)
		add("tcp_port", st.Port)
		add("uptime_in_seconds", int64(st.Uptime/time.Second))
		add("uptime_in_days", int64(st.Uptime/(24*time.Hour)))
	})
	section("clients", "Clients", func(add func(string, interface{})) {
		add("connected_clients", st.ConnectedClients)
		add("blocked_clients", st.BlockedClients)
	})
	section("memory", "Memory", func(add func(string, interface{})) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		add("used_memory", ms.HeapAlloc)
		add("used_memory_sys", ms.Sys)
		add("number_of_cached_scripts", st.Scripts)
	})
	section("stats", "Stats", func(add func(string, interface{})) {
		add("total_connections_received", st.TotalConnections)
		add("total_commands_processed", st.CommandsProcessed)
		add("rejected_connections", st.RejectedConnections)
		add("total_error_replies", st.ErrorReplies)
	})
	section("commandstats", "Commandstats", func(add func(string, interface{})) {
		for _, cs := range st.Commands {
			add("cmdstat_"+cs.Name, fmt.Sprintf("calls=%d", cs.Calls))
		}
	})
	section("keyspace", "Keyspace", func(add func(string, interface{})) {
		if st.Keys > 0 {
			add("db0", fmt.Sprintf("keys=%d,expires=%d,avg_ttl=0", st.Keys, st.Expires))
		}
	})
	return b.String()
}
