package standby

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"github.com/rkt/rkt/pkg/lock"
)

// counterFileName is the file, inside the coordination directory, counting
// how many server nodes have been launched against it.
const counterFileName = "server_counter"

// coordinator decides the startup role of server nodes sharing a
// coordination directory. The first node to take the counter is active;
// every later one is a standby. This is a stand-in for leader election and
// makes no attempt to be one: a counter left behind by a previous cluster
// makes every new node a standby until the directory is reset.
type coordinator struct {
	lock *lock.FileLock
	dir  string
	l    log15.Logger
}

func touchFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

// lockCoordinationDir takes an exclusive lock on the counter file in dir,
// blocking until it can be acquired.
func lockCoordinationDir(l log15.Logger, dir string) (*coordinator, error) {
	l = l.New("dir", dir)
	coord := &coordinator{dir: dir, l: l}
	if err := touchFile(coord.counterFile()); err != nil {
		return nil, errors.Wrap(err, "can't create counter file")
	}
	l.Debug("taking lock on coordination dir")
	fl, err := lock.ExclusiveLock(coord.counterFile(), lock.RegFile)
	if err != nil {
		return nil, errors.Wrap(err, "can't lock counter file")
	}
	l.Debug("took lock on coordination dir")
	coord.lock = fl
	return coord, nil
}

func (c *coordinator) counterFile() string {
	return filepath.Join(c.dir, counterFileName)
}

// count returns how many nodes have taken the counter so far. An empty file
// counts as zero.
func (c *coordinator) count() (int, error) {
	data, err := os.ReadFile(c.counterFile())
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("unable to parse counter out of data %q: %v", text, err)
	}
	return n, nil
}

func (c *coordinator) increment(n int) error {
	return os.WriteFile(c.counterFile(), []byte(strconv.Itoa(n+1)), 0644)
}

func (c *coordinator) Unlock() error {
	c.l.Debug("unlocking coordination dir")
	if err := c.lock.Unlock(); err != nil {
		return err
	}
	return c.lock.Close()
}

// AssignRole takes a ticket from the counter in dir. The first caller gets
// RoleActive, every later caller RoleStandby. dir must exist and be writable.
func AssignRole(l log15.Logger, dir string) (Role, error) {
	coord, err := lockCoordinationDir(l, dir)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := coord.Unlock(); err != nil {
			l.Error("error unlocking coordination dir", "err", err)
		}
	}()

	n, err := coord.count()
	if err != nil {
		return "", errors.Wrap(err, "can't read counter file")
	}
	if err := coord.increment(n); err != nil {
		return "", errors.Wrap(err, "can't write counter file")
	}
	role := RoleStandby
	if n == 0 {
		role = RoleActive
	}
	l.Info("assigned startup role", "role", role, "ticket", n)
	return role, nil
}
