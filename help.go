package opts

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"text/tabwriter"
)

// boolDefaultLabels renders the default of boolean-like options as the mode
// it selects instead of true/false.
var boolDefaultLabels = map[string][2]string{
	"analyze_group":      {"Group", "Individual"},
	"norm_target":        {"series", "tail"},
	"data_is_continuous": {"continuous", "discrete"},
	"run_ks_test":        {"run", "skip"},
	"compare_distros":    {"compare", "no compare"},
}

// DefaultLabel returns the "[default: ...]" text shown for d, or "" when the
// default is not shown.
func DefaultLabel(d *Descriptor) string {
	if d == nil || !d.ShowDefault {
		return ""
	}
	if labels, ok := boolDefaultLabels[d.Name]; ok {
		if b, isBool := d.Default.(bool); isBool {
			if b {
				return labels[0]
			}
			return labels[1]
		}
	}
	if d.Callback == CallbackNprocDefault {
		if d.Default == nil {
			return fmt.Sprintf("%d (# CPUs)", runtime.NumCPU())
		}
		return fmt.Sprintf("%v (from config)", d.Default)
	}
	if d.Kind == GrammarChoiceMap {
		return ""
	}
	switch v := d.Default.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(v, " ")
	default:
		return fmt.Sprint(v)
	}
}

// WriteHelp renders the visible descriptors as an option table.
func WriteHelp(w io.Writer, descriptors []*Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Options:")
	for _, d := range descriptors {
		if d == nil || d.Hidden {
			continue
		}
		spelling := strings.Join(d.Flags(), ", ")
		if d.Metavar != "" {
			spelling += " " + d.Metavar
		} else if !d.IsFlag() && d.Kind != GrammarChoiceMap {
			spelling += " " + strings.ToUpper(string(typeOrText(d.Type.Name)))
		}
		help := strings.ReplaceAll(strings.TrimSpace(d.Help), "\n", " ")
		if label := DefaultLabel(d); label != "" {
			help += "  [default: " + label + "]"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", spelling, help)
	}
	return tw.Flush()
}

func typeOrText(name ValueType) ValueType {
	switch name {
	case "", TypeString, TypeChoice:
		return "text"
	default:
		return name
	}
}
