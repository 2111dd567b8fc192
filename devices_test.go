package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinuxIsWholeDisk(t *testing.T) {
	whole := []string{"sda", "sdb", "vda", "nvme0n1", "nvme1n2", "nvme10n1", "mmcblk0", "mmcblk1"}
	for _, name := range whole {
		assert.True(t, linuxIsWholeDisk(name), name)
	}

	notWhole := []string{"sda1", "sdb2", "vda1", "nvme0n1p1", "nvme0n1p12", "nvme0", "mmcblk0p1", "loop0", "sr0", "sdab"}
	for _, name := range notWhole {
		assert.False(t, linuxIsWholeDisk(name), name)
	}
}

func TestLinuxIsPartition(t *testing.T) {
	parts := []string{"sda1", "vda2", "nvme0n1p1", "mmcblk0p1"}
	for _, name := range parts {
		assert.True(t, linuxIsPartition(name), name)
	}
	for _, name := range []string{"sda", "vda", "nvme0n1", "mmcblk0"} {
		assert.False(t, linuxIsPartition(name), name)
	}
}

func TestDarwinIsPartition(t *testing.T) {
	assert.True(t, darwinIsPartition("disk2s1"))
	assert.True(t, darwinIsPartition("rdisk0s3"))
	assert.False(t, darwinIsPartition("disk2"))
	assert.False(t, darwinIsPartition("rdisk0"))
}

func TestMediaTypeBySize(t *testing.T) {
	assert.Equal(t, "1.44M floppy", mediaTypeBySize(1440*1024))
	assert.Equal(t, "720K floppy", mediaTypeBySize(720*1024))
	assert.Equal(t, "", mediaTypeBySize(1<<30))
}
