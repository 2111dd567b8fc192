// fatfix inspects, validates and repairs the boot sector (sector 0) of
// FAT12/16/32 volumes, on disk images or raw block devices. It never
// touches the FAT tables or directory data: analysis is read-only, and
// repair rewrites exactly one sector after backing up the original.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"fatfix/bootsector"
	"fatfix/recovery"
	"fatfix/retroview"
	"fatfix/sector"
)

var appFs = afero.NewOsFs()

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "fatfix",
		Short: "FAT boot sector analysis and recovery tool",
		Long:  "Inspect, validate and repair the boot sector of FAT12/16/32 volumes on images or block devices",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			log.SetFormatter(&log.TextFormatter{})
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(analyzeCmd())
	root.AddCommand(repairCmd())
	root.AddCommand(dumpCmd())
	root.AddCommand(viewCmd())
	root.AddCommand(deviceCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

/* ===================== target plumbing ===================== */

// targetFlags is the shared --image/--device target selection.
type targetFlags struct {
	image    string
	device   string
	sizeHint string
}

func (t *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.image, "image", "", "disk image file")
	cmd.Flags().StringVar(&t.device, "device", "", "raw block device (e.g. /dev/sdb)")
	cmd.Flags().StringVar(&t.sizeHint, "size-hint", "", "override detected device size (e.g. 20m, 2g)")
}

func (t *targetFlags) open() (*sector.FileStore, string, error) {
	switch {
	case t.image != "" && t.device != "":
		return nil, "", fmt.Errorf("choose one of --image or --device")
	case t.image != "":
		st, err := sector.OpenImage(appFs, t.image)
		return st, t.image, err
	case t.device != "":
		st, err := sector.OpenDevice(t.device)
		return st, t.device, err
	default:
		return nil, "", fmt.Errorf("choose --image or --device")
	}
}

func (t *targetFlags) hint() (int64, error) {
	if t.sizeHint == "" {
		return 0, nil
	}
	return parseSize(t.sizeHint)
}

/* ===================== analyze ===================== */

func analyzeCmd() *cobra.Command {
	var target targetFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Inspect and validate a volume's boot sector (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			hint, err := target.hint()
			if err != nil {
				return err
			}
			store, name, err := target.open()
			if err != nil {
				return err
			}
			defer store.Close()

			a, err := recovery.New(store, recovery.WithDiskSizeHint(hint)).Analyze()
			if err != nil {
				return err
			}

			printAnalysis(name, a)
			if a.RecoveryNeeded {
				fmt.Println("\nBoot sector is NOT trustworthy. Run `fatfix repair` to rebuild it.")
				store.Close()
				os.Exit(1)
			}
			fmt.Println("\nBoot sector is valid.")
			return nil
		},
	}
	target.register(cmd)
	return cmd
}

func printAnalysis(name string, a *recovery.Analysis) {
	bar := strings.Repeat("═", 72)
	rule := strings.Repeat("─", 72)

	fmt.Println(bar)
	fmt.Printf(" VOLUME %s\n", name)
	fmt.Println(rule)
	if a.DiskSize > 0 {
		fmt.Printf(" Device size: %d bytes (%s)\n", a.DiskSize, human(a.DiskSize))
	} else {
		fmt.Println(" Device size: unknown")
	}
	for _, line := range fieldLines(a.Info) {
		fmt.Printf(" %s\n", line)
	}

	fmt.Println(rule)
	fmt.Println(" BOOT SECTOR (first 64 bytes)")
	for _, line := range hexDump(a.Raw, 64) {
		fmt.Printf(" %s\n", line)
	}

	fmt.Println(rule)
	if len(a.Findings) == 0 {
		fmt.Println(" No findings.")
	} else {
		fmt.Printf(" FINDINGS (%d)\n", len(a.Findings))
		for i, f := range a.Findings {
			fmt.Printf("  %d. %s\n", i+1, f)
		}
	}
	fmt.Println(bar)
}

// fieldLines renders the decoded boot sector fields for display.
func fieldLines(in bootsector.Info) []string {
	lay := in.Layout()
	return []string{
		fmt.Sprintf("OEM: %-8s  Label: %-11s  Serial: %08X", strings.TrimSpace(in.OEMName), strings.TrimSpace(in.VolumeLabel), in.VolumeID),
		fmt.Sprintf("Type: %-5s  Media: 0x%02X  Signature: 0x%04X", in.Type, in.Media, in.Signature),
		fmt.Sprintf("Bytes/Sector: %-4d  Sectors/Cluster: %-3d  Reserved: %d", in.BytesPerSector, in.SectorsPerCluster, in.ReservedSectors),
		fmt.Sprintf("FATs: %d  Root entries: %-4d  Sectors/FAT: %d", in.NumFATs, in.RootEntries, lay.FATSectors),
		fmt.Sprintf("Total sectors: %-8d  Hidden: %-6d  Track/Heads: %d/%d", in.TotalSectors(), in.HiddenSectors, in.SectorsPerTrack, in.NumHeads),
		fmt.Sprintf("Clusters: %-8d  Data sectors: %-8d  First data sector: %d", lay.ClusterCount, lay.DataSectors, lay.FirstDataSector),
	}
}

/* ===================== repair ===================== */

func repairCmd() *cobra.Command {
	var (
		target     targetFlags
		backupPath string
		force      bool
		yes        bool
	)
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Rebuild an invalid boot sector (backs up the original first)",
		RunE: func(_ *cobra.Command, _ []string) error {
			if target.device != "" && !force {
				return fmt.Errorf("--device requires --force")
			}
			if target.device != "" && runtime.GOOS == "windows" {
				return fmt.Errorf("raw device repair is not supported on Windows; image the device first and repair the image")
			}
			hint, err := target.hint()
			if err != nil {
				return err
			}
			store, name, err := target.open()
			if err != nil {
				return err
			}
			defer store.Close()

			if backupPath == "" {
				backupPath = filepath.Base(name) + ".boot.bak"
			}
			backup := func(raw []byte) error {
				if err := afero.WriteFile(appFs, backupPath, raw, 0600); err != nil {
					return err
				}
				log.WithField("path", backupPath).Info("original boot sector saved")
				return nil
			}

			session := recovery.New(store, recovery.WithDiskSizeHint(hint), recovery.WithBackup(backup))
			a, err := session.Analyze()
			if err != nil {
				return err
			}
			printAnalysis(name, a)

			if !a.RecoveryNeeded {
				fmt.Println("\nBoot sector is valid, nothing to repair.")
				return nil
			}

			fmt.Printf("\nAbout to overwrite the boot sector of %s.\n", name)
			fmt.Println("A wrong replacement can make the volume unreadable. The original")
			fmt.Printf("sector will be saved to %s first.\n", backupPath)
			if !yes && !confirm("Continue") {
				fmt.Println("Aborted, nothing written.")
				return nil
			}

			result, err := session.Repair()
			if err != nil {
				var rerr *recovery.Error
				if errors.As(err, &rerr) && rerr.Kind == recovery.KindVerificationFailed {
					fmt.Println("\nThe rewritten sector still fails validation:")
					for _, f := range rerr.Findings {
						fmt.Printf("  - %s\n", f)
					}
				}
				return err
			}

			fmt.Println("\nBoot sector repaired and verified:")
			for _, line := range fieldLines(result.Info) {
				fmt.Printf(" %s\n", line)
			}
			for _, f := range result.Findings {
				fmt.Printf(" %s\n", f)
			}
			fmt.Printf("\nOriginal sector backed up to %s\n", backupPath)
			return nil
		},
	}
	target.register(cmd)
	cmd.Flags().StringVar(&backupPath, "backup", "", "backup file for the original boot sector (default <target>.boot.bak)")
	cmd.Flags().BoolVar(&force, "force", false, "required with --device")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

func confirm(prompt string) bool {
	fmt.Printf("%s? (yes/no): ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "yes" || answer == "y"
}

/* ===================== dump ===================== */

func dumpCmd() *cobra.Command {
	var (
		target targetFlags
		nbytes int
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Hex dump a volume's boot sector (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			store, name, err := target.open()
			if err != nil {
				return err
			}
			defer store.Close()

			raw, err := store.ReadSectors(0, 1)
			if err != nil {
				return err
			}
			if nbytes <= 0 || nbytes > len(raw) {
				nbytes = len(raw)
			}
			fmt.Printf("%s, sector 0:\n", name)
			for _, line := range hexDump(raw, nbytes) {
				fmt.Println(line)
			}
			return nil
		},
	}
	target.register(cmd)
	cmd.Flags().IntVar(&nbytes, "bytes", 512, "number of bytes to dump")
	return cmd
}

// hexDump renders data in the classic 16-bytes-per-row hex+ASCII layout.
func hexDump(data []byte, max int) []string {
	if max > len(data) {
		max = len(data)
	}
	var out []string
	for i := 0; i < max; i += 16 {
		end := i + 16
		if end > max {
			end = max
		}
		chunk := data[i:end]
		var hexs, asciis strings.Builder
		for _, b := range chunk {
			fmt.Fprintf(&hexs, "%02X ", b)
			if b >= 0x20 && b <= 0x7E {
				asciis.WriteByte(b)
			} else {
				asciis.WriteByte('.')
			}
		}
		out = append(out, fmt.Sprintf("%04X: %-48s %s", i, hexs.String(), asciis.String()))
	}
	return out
}

/* ===================== view ===================== */

func viewCmd() *cobra.Command {
	var target targetFlags
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Fullscreen boot sector inspector (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			hint, err := target.hint()
			if err != nil {
				return err
			}
			store, name, err := target.open()
			if err != nil {
				return err
			}
			defer store.Close()

			a, err := recovery.New(store, recovery.WithDiskSizeHint(hint)).Analyze()
			if err != nil {
				return err
			}

			v, err := retroview.New()
			if err != nil {
				return fmt.Errorf("ui init: %w", err)
			}
			defer v.Close()

			verdict := "VALID"
			if a.RecoveryNeeded {
				verdict = "NEEDS RECOVERY"
			}
			v.SetTitle(fmt.Sprintf(" %s - %s - %s ", name, a.Info.Type, verdict))
			v.SetFields(fieldLines(a.Info))
			findings := make([]string, 0, len(a.Findings))
			for _, f := range a.Findings {
				findings = append(findings, f.String())
			}
			if len(findings) == 0 {
				findings = []string{"no findings"}
			}
			v.SetFindings(findings)
			v.SetHexDump(hexDump(a.Raw, len(a.Raw)))
			v.SetFooter("Q to quit")
			v.Run()
			return nil
		},
	}
	target.register(cmd)
	return cmd
}

/* ===================== helpers ===================== */

func parseSize(s string) (int64, error) {
	ss := strings.TrimSpace(strings.ToLower(s))
	if ss == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(ss, "k"):
		mult = 1024
		ss = strings.TrimSuffix(ss, "k")
	case strings.HasSuffix(ss, "m"):
		mult = 1024 * 1024
		ss = strings.TrimSuffix(ss, "m")
	case strings.HasSuffix(ss, "g"):
		mult = 1024 * 1024 * 1024
		ss = strings.TrimSuffix(ss, "g")
	case strings.HasSuffix(ss, "b"):
		mult = 1
		ss = strings.TrimSuffix(ss, "b")
	}
	v, err := strconv.ParseFloat(ss, 64)
	if err != nil {
		return 0, err
	}
	return int64(v * float64(mult)), nil
}

func human(b int64) string {
	if b >= 1024*1024*1024 {
		return fmt.Sprintf("%dG", b/(1024*1024*1024))
	}
	if b >= 1024*1024 {
		return fmt.Sprintf("%dM", b/(1024*1024))
	}
	if b >= 1024 {
		return fmt.Sprintf("%dK", b/1024)
	}
	return fmt.Sprintf("%dB", b)
}
