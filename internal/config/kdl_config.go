package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load search configuration from ".mftsearch.kdl" in
// projectRoot. Returns (nil, nil) if the file doesn't exist so callers fall
// back to config.Default().
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, ".mftsearch.kdl")

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read .mftsearch.kdl: %w", err)
	}

	return parseKDL(string(content))
}

// parseKDL parses the textual contents of a .mftsearch.kdl file into a
// Config, starting from Default() and overriding whatever nodes are present.
func parseKDL(content string) (*Config, error) {
	def := Default()
	cfg := &def

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "io":
			for _, cn := range n.Children { // io { workers 8; max_pending_reads 4096 }
				switch nodeName(cn) {
				case "workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.IO.Workers = v
					}
				case "max_pending_reads":
					if v, ok := firstIntArg(cn); ok {
						cfg.IO.MaxPendingReads = v
					}
				}
			}
		case "scheduler":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "initial_concurrency":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scheduler.InitialConcurrency = v
					}
				case "block_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scheduler.BlockSizeBytes = int64(v)
					}
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Scheduler.BlockSizeBytes = sz
						}
					}
				}
			}
		case "pattern":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "case_insensitive":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Pattern.CaseInsensitive = b
					}
				case "min_wildcard_threshold":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pattern.MinWildcardThreshold = v
					}
				}
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

// parseSize handles size strings like "1MiB", "512KiB".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GIB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GIB")
	case strings.HasSuffix(s, "MIB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MIB")
	case strings.HasSuffix(s, "KIB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KIB")
	case strings.HasSuffix(s, "B"):
		multiplier = 1
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return num * multiplier, nil
}
