package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"fatfix/bootsector"
	"fatfix/sector"
)

/* ===================== device discovery (read-only) ===================== */

type deviceEntry struct {
	Path       string
	Compatible bool
	Reason     string
}

func deviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Device utilities (safe, read-only)",
	}

	var listAll bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List whole-disk devices usable as recovery targets",
		RunE: func(_ *cobra.Command, _ []string) error {
			entries, err := discoverDevices()
			if err != nil {
				return err
			}
			fmt.Printf("OS: %s\n", runtime.GOOS)
			fmt.Println("Read-only listing; nothing is written.")
			fmt.Println()
			fmt.Printf("  %-20s  %-10s  %-14s\n", "Path", "Size", "Media")
			shown := false
			for _, d := range entries {
				if !d.Compatible {
					continue
				}
				size := deviceSize(d.Path)
				media := mediaTypeBySize(size)
				sizeStr := "-"
				if size > 0 {
					sizeStr = human(size)
				}
				fmt.Printf("  %-20s  %-10s  %-14s\n", d.Path, sizeStr, media)
				shown = true
			}
			if !shown {
				fmt.Println("  <none detected>")
			}
			if listAll {
				fmt.Println()
				fmt.Println("Not usable as whole-disk targets:")
				for _, d := range entries {
					if d.Compatible {
						continue
					}
					fmt.Printf("  %s  (%s)\n", d.Path, d.Reason)
				}
			}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listAll, "all", false, "include partitions and other non-targets")
	cmd.AddCommand(listCmd)

	var infoPath string
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show size and boot sector status for a device or image",
		RunE: func(_ *cobra.Command, _ []string) error {
			if strings.TrimSpace(infoPath) == "" {
				return fmt.Errorf("--path is required")
			}
			st, err := sector.OpenReadOnly(infoPath)
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Printf("Path:   %s\n", infoPath)
			if st.Size() > 0 {
				fmt.Printf("Size:   %d bytes (%s)\n", st.Size(), human(st.Size()))
				if m := mediaTypeBySize(st.Size()); m != "" {
					fmt.Printf("Media:  %s\n", m)
				}
			} else {
				fmt.Println("Size:   unknown")
			}

			raw, err := st.ReadSectors(0, 1)
			if err != nil {
				fmt.Printf("Boot:   unreadable (%v)\n", err)
				return nil
			}
			info, err := bootsector.Decode(raw[:bootsector.SectorSize])
			if err != nil {
				return err
			}
			if bootsector.IsValid(bootsector.Validate(info, st.Size())) {
				fmt.Printf("Boot:   valid %s boot sector\n", info.Type)
			} else {
				fmt.Println("Boot:   invalid or damaged boot sector")
			}
			return nil
		},
	}
	infoCmd.Flags().StringVar(&infoPath, "path", "", "device or image path")
	cmd.AddCommand(infoCmd)

	return cmd
}

func deviceSize(path string) int64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	return sector.DetectSize(f)
}

func discoverDevices() ([]deviceEntry, error) {
	switch runtime.GOOS {
	case "darwin":
		return discoverDarwin()
	case "linux":
		return discoverLinux()
	case "windows":
		return discoverWindows()
	default:
		return nil, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

func discoverDarwin() ([]deviceEntry, error) {
	dir, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	var out []deviceEntry
	for _, e := range dir {
		name := e.Name()
		if !strings.HasPrefix(name, "disk") && !strings.HasPrefix(name, "rdisk") {
			continue
		}
		path := filepath.Join("/dev", name)
		if darwinIsPartition(name) {
			out = append(out, deviceEntry{Path: path, Reason: "partition"})
		} else {
			out = append(out, deviceEntry{Path: path, Compatible: true})
		}
	}
	return out, nil
}

// darwinIsPartition reports an 's' followed by a digit, e.g. disk2s1.
func darwinIsPartition(name string) bool {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == 's' && name[i+1] >= '0' && name[i+1] <= '9' {
			return true
		}
	}
	return false
}

func discoverLinux() ([]deviceEntry, error) {
	dir, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	var out []deviceEntry
	for _, e := range dir {
		name := e.Name()
		path := filepath.Join("/dev", name)
		switch {
		case linuxIsWholeDisk(name):
			out = append(out, deviceEntry{Path: path, Compatible: true})
		case linuxIsPartition(name):
			out = append(out, deviceEntry{Path: path, Reason: "partition"})
		case strings.HasPrefix(name, "loop"):
			out = append(out, deviceEntry{Path: path, Reason: "loop device"})
		}
	}
	return out, nil
}

func linuxIsWholeDisk(name string) bool {
	// sdX, vdX
	if len(name) == 3 && (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd")) && name[2] >= 'a' && name[2] <= 'z' {
		return true
	}
	// nvme<ctrl>n<ns>; a trailing p<part> makes it a partition
	if strings.HasPrefix(name, "nvme") {
		rest := strings.TrimPrefix(name, "nvme")
		i := strings.LastIndexByte(rest, 'n')
		return i > 0 && isDigits(rest[:i]) && isDigits(rest[i+1:])
	}
	// mmcblkX
	return strings.HasPrefix(name, "mmcblk") && isDigits(strings.TrimPrefix(name, "mmcblk"))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func linuxIsPartition(name string) bool {
	if (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd")) && len(name) >= 4 {
		return name[len(name)-1] >= '0' && name[len(name)-1] <= '9'
	}
	if strings.HasPrefix(name, "nvme") && strings.Contains(name, "p") {
		return true
	}
	return strings.HasPrefix(name, "mmcblk") && strings.Contains(name, "p")
}

func discoverWindows() ([]deviceEntry, error) {
	var out []deviceEntry
	for i := 0; i < 32; i++ {
		path := fmt.Sprintf("\\\\.\\PhysicalDrive%d", i)
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		_ = f.Close()
		out = append(out, deviceEntry{Path: path, Compatible: true})
	}
	return out, nil
}

func mediaTypeBySize(size int64) string {
	switch size {
	case 360 * 1024:
		return "360K floppy"
	case 720 * 1024:
		return "720K floppy"
	case 1200 * 1024:
		return "1.2M floppy"
	case 1440 * 1024:
		return "1.44M floppy"
	case 2880 * 1024:
		return "2.88M floppy"
	default:
		return ""
	}
}
