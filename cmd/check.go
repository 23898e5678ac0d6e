package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"grimm.is/tollgate/internal/brand"
	"grimm.is/tollgate/internal/config"
	"grimm.is/tollgate/internal/firewall"
	"grimm.is/tollgate/internal/logging"
	"grimm.is/tollgate/internal/metrics"
)

// RunCheck validates the configuration file and prints the effective
// settings. verbose adds the full rule table.
func RunCheck(out io.Writer, configFile string, verbose bool) error {
	if len(configFile) == 0 {
		return fmt.Errorf("usage: %s check [-v] <config-file>", brand.BinaryName)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	engine, err := cfg.NewEngine(firewall.WithLogger(logging.Discard()), firewall.WithMetrics(metrics.New()))
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	pc := cfg.ProxyConfig()
	fmt.Fprintf(out, "Configuration valid!\n")
	fmt.Fprintf(out, "Listen: %s (tcp=%t udp=%t)\n", pc.ListenAddr(), pc.EnableTCP, pc.EnableUDP)
	fmt.Fprintf(out, "Target: %s\n", pc.TargetAddr())
	fmt.Fprintf(out, "Default action: %s\n", engine.DefaultAction())
	fmt.Fprintf(out, "Whitelist: %d  Blacklist: %d\n", len(engine.Whitelist()), len(engine.Blacklist()))
	fmt.Fprintf(out, "Rules: %d\n", len(engine.Rules()))
	if cfg.APIEnabled() {
		fmt.Fprintf(out, "API: %s (metrics=%t)\n", cfg.APIListen(), cfg.MetricsEnabled())
	} else {
		fmt.Fprintf(out, "API: disabled\n")
	}

	if !verbose || len(engine.Rules()) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tACTION\tPROTO\tSRC\tDST\tPATTERN")
	for i, r := range engine.Rules() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i, r.Name, r.Action, r.Protocol,
			endpoint(r.SrcIP, r.SrcPort), endpoint(r.DstIP, r.DstPort),
			orAny(r.Pattern))
	}
	return w.Flush()
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

func endpoint(ip, port string) string {
	return orAny(ip) + ":" + orAny(port)
}
