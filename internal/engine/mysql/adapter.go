// Package mysql is the engine adapter shared by the MySQL and MariaDB kinds.
package mysql

import (
	"context"
	"net"
	"strconv"

	driver "github.com/go-sql-driver/mysql"

	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/engine/sqlexec"
)

const (
	Scheme     = "mysql"
	driverName = "mysql"
	family     = "MySQL/MariaDB"
)

type Adapter struct {
	exec sqlexec.Executor
}

func New() *Adapter {
	return NewWithOpener(nil)
}

// NewWithOpener replaces sql.Open, mainly for tests.
func NewWithOpener(open sqlexec.OpenFunc) *Adapter {
	return &Adapter{exec: sqlexec.Executor{DriverName: driverName, Family: family, Open: open}}
}

func (a *Adapter) Family() string {
	return family
}

func (a *Adapter) Scheme() string {
	return Scheme
}

func (a *Adapter) Kinds() []engine.Kind {
	return []engine.Kind{engine.KindMySQL, engine.KindMariaDB}
}

func (a *Adapter) TestConnection(ctx context.Context, descriptor engine.Descriptor) (string, error) {
	if err := a.exec.Ping(ctx, DSN(descriptor)); err != nil {
		return "", err
	}
	return "Successfully connected to " + family + "!", nil
}

func (a *Adapter) RunQuery(ctx context.Context, descriptor engine.Descriptor, query string) (engine.RawResultSet, error) {
	return a.exec.Query(ctx, DSN(descriptor), query)
}

// DSN renders the same fields as the mysql:// address in the driver's own
// user:pass@tcp(host:port)/db form, which go-sql-driver/mysql requires.
func DSN(descriptor engine.Descriptor) string {
	cfg := driver.NewConfig()
	cfg.User = descriptor.User
	cfg.Passwd = descriptor.PasswordOrEmpty()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(descriptor.Host, strconv.Itoa(int(descriptor.Port)))
	cfg.DBName = descriptor.Database
	return cfg.FormatDSN()
}
