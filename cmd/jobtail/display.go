package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/steveyegge/vc/internal/jobdir"
)

// displayEvent formats and prints one harness event with a consistent
// single-line format: emoji + facet kind + colored summary.
func displayEvent(jobID string, e jobdir.HarnessEvent) {
	kind, body := leadingFacet(e)
	emoji := facetEmoji(kind)
	kindColor := facetColor(kind)

	stamp := "-"
	if e.Stamp != nil {
		stamp = fmt.Sprintf("%.3f", *e.Stamp)
	}

	jobColor := color.New(color.FgGreen).Sprint(jobID)
	kindLabel := kindColor.Sprint(kind)

	fmt.Printf("%s [%s] %s %s: %s\n", emoji, stamp, jobColor, kindLabel, summarize(kind, body))
}

// leadingFacet returns the first non-"about" facet key met while ranging
// over an event's facet_data map. The info, diag, start and exit events the
// jobdir package synthesizes carry exactly one such key; for an event with
// several, which one is returned is not defined, and
// an event with none is reported as "unknown". "info" facets are shaped as a
// one-element array rather than an object, so their sole element is
// unwrapped here for display.
func leadingFacet(e jobdir.HarnessEvent) (string, map[string]interface{}) {
	for k, v := range e.FacetData {
		if k == "about" {
			continue
		}
		switch body := v.(type) {
		case map[string]interface{}:
			return k, body
		case []interface{}:
			if len(body) > 0 {
				if first, ok := body[0].(map[string]interface{}); ok {
					return k, first
				}
			}
			return k, nil
		default:
			return k, nil
		}
	}
	return "unknown", nil
}

func facetEmoji(kind string) string {
	switch kind {
	case "harness_job_start":
		return "\U0001F680" // rocket
	case "harness_job_exit":
		return "\U0001F3C1" // checkered flag
	case "assert":
		return "✅" // check mark
	case "diag":
		return "\U0001F4AC" // speech balloon
	case "info":
		return "ℹ️" // info
	default:
		return "•"
	}
}

func facetColor(kind string) *color.Color {
	switch kind {
	case "harness_job_start":
		return color.New(color.FgCyan)
	case "harness_job_exit":
		return color.New(color.FgMagenta)
	case "assert":
		return color.New(color.FgGreen)
	case "diag":
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgWhite)
	}
}

func summarize(kind string, body map[string]interface{}) string {
	if body == nil {
		return ""
	}
	switch kind {
	case "harness_job_exit":
		return fmt.Sprintf("code=%v", body["code"])
	case "info":
		return truncate(fmt.Sprintf("%v", body["details"]), 80)
	case "diag":
		return truncate(fmt.Sprintf("%v", body["details"]), 80)
	default:
		return truncate(fmt.Sprintf("%v", body), 80)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
