package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gogpu/depthfx/backend"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the available render backends",
	Long: `Probe tries each registered backend in selection order, opening and
closing its render device, and reports the device class and the
quality tier effects would run at.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	usable := 0
	for _, name := range []string{backend.BackendWGPU, backend.BackendNative} {
		b := backend.Get(name)
		if b == nil {
			fmt.Fprintf(out, "%-8s not registered\n", name)
			continue
		}
		if err := b.Init(); err != nil {
			fmt.Fprintf(out, "%-8s unavailable: %v\n", name, err)
			continue
		}
		class := b.Class()
		tier := backend.TierFor(class, runtime.NumCPU())
		fmt.Fprintf(out, "%-8s device=%s tier=%s\n", name, class, tier)
		b.Close()
		usable++
	}
	if usable == 0 {
		return fmt.Errorf("no usable backend")
	}
	return nil
}
