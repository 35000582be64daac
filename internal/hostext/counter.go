// Package hostext provides illustrative Userdata bindings that bridge a KPL
// Value to a real external resource, the way internal/database and
// internal/network bind a connection object to a runtime value.
package hostext

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/NightTerror1721/kpl/internal/value"
)

// Counter is a Userdata backed by a single-row sqlite table, standing in
// for any persistent-state host resource a script needs a handle to.
// GetProperty("value") reads the row; SetProperty("value", n) overwrites
// it; SetProperty("increment", _) bumps it by one. There is no dedicated
// callable-property machinery in the Value model, so "increment" is
// triggered by the act of writing to it rather than by invoking anything.
type Counter struct {
	ctx *value.Context
	db  *sql.DB
	id  int64
}

// NewCounter opens an in-memory sqlite-backed counter starting at start and
// wraps it as a KPL Userdata value.
func NewCounter(ctx *value.Context, start int64) (value.Value, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return value.Null, fmt.Errorf("hostext: open counter store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE counter (id INTEGER PRIMARY KEY, value INTEGER NOT NULL)`); err != nil {
		db.Close()
		return value.Null, fmt.Errorf("hostext: create counter table: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO counter (id, value) VALUES (1, ?)`, start); err != nil {
		db.Close()
		return value.Null, fmt.Errorf("hostext: seed counter row: %w", err)
	}
	c := &Counter{ctx: ctx, db: db, id: 1}
	return value.NewUserdata(ctx, c)
}

func (c *Counter) read() int64 {
	var v int64
	if err := c.db.QueryRow(`SELECT value FROM counter WHERE id = ?`, c.id).Scan(&v); err != nil {
		return 0
	}
	return v
}

func (c *Counter) write(v int64) {
	c.db.Exec(`UPDATE counter SET value = ? WHERE id = ?`, v, c.id)
}

func (c *Counter) GetProperty(name string) value.Value {
	switch name {
	case "value":
		return value.Int(c.read())
	default:
		return value.Null
	}
}

func (c *Counter) SetProperty(name string, v value.Value) {
	switch name {
	case "value":
		if n, err := value.ToInteger(v); err == nil {
			c.write(n)
		}
	case "increment":
		c.write(c.read() + 1)
	}
}

func (c *Counter) DelProperty(string) {}

// Close releases the backing sqlite connection. Userdata.Destroy calls this
// via the optional io.Closer-shaped interface it probes for.
func (c *Counter) Close() error {
	return c.db.Close()
}
