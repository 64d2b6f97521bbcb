package standby

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAssignRole is a happy-path test of the role counter: the first node is
// active and everyone after it stands by.
func TestAssignRole(t *testing.T) {
	dir := tmpDir(t)

	role, err := AssignRole(l, dir)
	require.NoError(t, err)
	require.Equal(t, RoleActive, role)

	for i := 0; i < 3; i++ {
		role, err = AssignRole(l, dir)
		require.NoError(t, err)
		require.Equal(t, RoleStandby, role)
	}

	data, err := os.ReadFile(filepath.Join(dir, counterFileName))
	require.NoError(t, err)
	require.Equal(t, "4", string(data))
}

// TestAssignRoleConcurrent checks the lock: racing callers still hand out
// exactly one active role.
func TestAssignRoleConcurrent(t *testing.T) {
	dir := tmpDir(t)

	const callers = 8
	roles := make(chan Role, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			role, err := AssignRole(l, dir)
			if err != nil {
				t.Errorf("assign role: %v", err)
				return
			}
			roles <- role
		}()
	}
	wg.Wait()
	close(roles)

	active := 0
	for role := range roles {
		if role == RoleActive {
			active++
		}
	}
	require.Equal(t, 1, active)
}

func TestAssignRoleEmptyCounter(t *testing.T) {
	dir := tmpDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, counterFileName), []byte("\n"), 0644))

	role, err := AssignRole(l, dir)
	require.NoError(t, err)
	require.Equal(t, RoleActive, role)
}

func TestAssignRoleCorruptCounter(t *testing.T) {
	dir := tmpDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, counterFileName), []byte("many"), 0644))

	_, err := AssignRole(l, dir)
	require.Error(t, err)
}

func TestAssignRoleMissingDir(t *testing.T) {
	_, err := AssignRole(l, filepath.Join(tmpDir(t), "nope"))
	require.Error(t, err)
}
