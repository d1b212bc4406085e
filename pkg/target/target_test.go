package target

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeProc creates a minimal /proc/<pid> entry
func writeProc(t *testing.T, root string, pid int, comm, state string) {
	t.Helper()
	dir := filepath.Join(root, fmt.Sprint(pid))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	stat := fmt.Sprintf("%d (%s) %s%s\n", pid, comm, state, strings.Repeat(" 0", 41))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte("/usr/bin/"+comm+"\x00--flag\x00"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cgroup"), []byte("4:blkio:/system.slice/"+comm+".service\n0::/user.slice\n"), 0o644))
}

func fakeInterfaces(name string, up bool) InterfaceLookup {
	return func(n string) (*net.Interface, error) {
		if n != name {
			return nil, fmt.Errorf("no such network interface")
		}
		iface := &net.Interface{Index: 3, Name: n}
		if up {
			iface.Flags = net.FlagUp
		}
		return iface, nil
	}
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		raw        string
		wantErr    bool
		kind       Kind
		capability types.Capability
	}{
		{raw: "interface:eth0", kind: KindInterface, capability: types.CapabilityNetwork},
		{raw: "pid:42", kind: KindPID, capability: types.CapabilityProcess},
		{raw: "process:nginx", kind: KindProcess, capability: types.CapabilityProcess},
		{raw: "host:cpu", kind: KindHost, capability: types.CapabilityResource},
		{raw: "HOST:memory", kind: KindHost, capability: types.CapabilityResource},
		{raw: "pid:-1", wantErr: true},
		{raw: "pid:abc", wantErr: true},
		{raw: "host:gpu", wantErr: true},
		{raw: "interface:", wantErr: true},
		{raw: "eth0", wantErr: true},
		{raw: "pod:nginx", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			sel, err := ParseSelector(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, sel.Kind)
			assert.Equal(t, tt.capability, sel.Capability())
		})
	}
}

func TestCheckKind(t *testing.T) {
	tests := []struct {
		kind    types.InjectionKind
		raw     string
		wantErr bool
	}{
		{kind: types.PacketLoss, raw: "interface:lo"},
		{kind: types.PacketLoss, raw: "pid:1", wantErr: true},
		{kind: types.CPUStarvation, raw: "host:cpu"},
		{kind: types.CPUStarvation, raw: "host:memory", wantErr: true},
		{kind: types.MemoryPressure, raw: "host:memory"},
		{kind: types.MemoryPressure, raw: "process:redis"},
		{kind: types.ProcessKill, raw: "host:cpu", wantErr: true},
		{kind: types.DiskSlow, raw: "pid:7"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.raw, func(t *testing.T) {
			sel, err := ParseSelector(tt.raw)
			require.NoError(t, err)
			err = CheckKind(tt.kind, sel)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	writeProc(t, root, 120, "nginx", "S")
	writeProc(t, root, 77, "nginx", "S")
	writeProc(t, root, 300, "redis", "Z")

	resolver, err := NewResolver(root, WithInterfaceLookup(fakeInterfaces("eth0", true)))
	require.NoError(t, err)

	tests := []struct {
		name       string
		selector   string
		identity   string
		wantReason cerrors.Reason
	}{
		{name: "interface", selector: "interface:eth0", identity: "interface:eth0"},
		{name: "missing interface", selector: "interface:eth9", wantReason: cerrors.ReasonNotFound},
		{name: "pid", selector: "pid:120", identity: "pid:120"},
		{name: "process name picks the lowest pid", selector: "process:nginx", identity: "pid:77"},
		{name: "missing pid", selector: "pid:999", wantReason: cerrors.ReasonNotFound},
		{name: "missing process name", selector: "process:postgres", wantReason: cerrors.ReasonNotFound},
		{name: "zombie process", selector: "pid:300", wantReason: cerrors.ReasonTargetUnavailable},
		{name: "host resource", selector: "host:cpu", identity: "host:cpu"},
		{name: "bad selector", selector: "bogus", wantReason: cerrors.ReasonNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := resolver.Resolve(context.Background(), tt.selector)
			if tt.wantReason != "" {
				require.Error(t, err)
				assert.True(t, cerrors.HasReason(err, tt.wantReason), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.identity, resolved.Identity())
			assert.Equal(t, tt.selector, resolved.Selector())
		})
	}
}

func TestResolveIsStable(t *testing.T) {
	root := t.TempDir()
	writeProc(t, root, 120, "nginx", "S")

	resolver, err := NewResolver(root)
	require.NoError(t, err)

	byName, err := resolver.Resolve(context.Background(), "process:nginx")
	require.NoError(t, err)
	byPID, err := resolver.Resolve(context.Background(), "pid:120")
	require.NoError(t, err)
	again, err := resolver.Resolve(context.Background(), "process:nginx")
	require.NoError(t, err)

	assert.Equal(t, byPID.Identity(), byName.Identity())
	assert.Equal(t, byName.Identity(), again.Identity())

	proc := byPID.(*Process)
	assert.Equal(t, []string{"/usr/bin/nginx", "--flag"}, proc.Cmdline)
	assert.Equal(t, "/system.slice/nginx.service", proc.Cgroups["blkio"])

	// resolving does not touch the tree
	entries, err := os.ReadDir(filepath.Join(root, "120"))
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestResolveInterfaceDown(t *testing.T) {
	resolver, err := NewResolver(t.TempDir(), WithInterfaceLookup(fakeInterfaces("eth1", false)))
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "interface:eth1")
	require.Error(t, err)
	assert.True(t, cerrors.HasReason(err, cerrors.ReasonTargetUnavailable))
}

func TestAvailableMemory(t *testing.T) {
	root := t.TempDir()
	meminfo := "MemTotal:       16000000 kB\nMemFree:         1000000 kB\nMemAvailable:    8000000 kB\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "meminfo"), []byte(meminfo), 0o644))

	resolver, err := NewResolver(root)
	require.NoError(t, err)

	available, err := resolver.AvailableMemory()
	require.NoError(t, err)
	assert.Equal(t, uint64(8000000*1024), available)
}
