package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installTool(t *testing.T, root, dir, binary string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	if binary != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, dir, binary), []byte("#!/bin/sh\n"), mode))
	}
}

func TestScanTools(t *testing.T) {
	root := t.TempDir()
	installTool(t, root, "nmap@7.94", "nmap", 0o755)
	installTool(t, root, "amass@4.2", "amass", 0o755)
	installTool(t, root, "noexec@1.0", "noexec", 0o644)
	installTool(t, root, "missing@1.0", "", 0)
	installTool(t, root, "wrongname@1.0", "other", 0o755)
	installTool(t, root, "noversion", "noversion", 0o755)
	require.NoError(t, os.WriteFile(filepath.Join(root, "file@1.0"), nil, 0o755))

	tools, err := ScanTools(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"amass@4.2", "nmap@7.94"}, tools)
}

func TestScanTools_MissingRoot(t *testing.T) {
	tools, err := ScanTools(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, tools)
	assert.NotNil(t, tools)

	tools, err = ScanTools("")
	require.NoError(t, err)
	assert.NotNil(t, tools)
}

func TestSlotLoad(t *testing.T) {
	assert.Equal(t, 0.0, SlotLoad(3, 0))
	assert.Equal(t, 0.5, SlotLoad(1, 2))
	assert.Equal(t, 0.0, SlotLoad(0, 4))
}

func TestSystemLoad_NonNegative(t *testing.T) {
	assert.GreaterOrEqual(t, SystemLoad(1, 2), 0.0)
}
