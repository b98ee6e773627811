package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/semmidev/obx/internal/config"
	"github.com/semmidev/obx/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func writeScript(dir, name, body string) string {
	path := filepath.Join(dir, name)
	So(os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755), ShouldBeNil)
	return path
}

func testConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Host:           "db.internal",
		Port:           5433,
		User:           "odoo",
		Password:       "it's secret",
		Name:           "prod",
		SSLMode:        "disable",
		ConnectTimeout: 10 * time.Second,
	}
}

func TestPostgreSQLDump(t *testing.T) {
	Convey("Given a PostgreSQL database", t, func() {
		cfg := testConfig()
		db := NewPostgreSQL(cfg)

		Convey("Dump arguments", func() {
			args := db.dumpArgs()

			Convey("They should name the database last and never carry the password", func() {
				So(args, ShouldResemble, []string{
					"--host=db.internal",
					"--port=5433",
					"--username=odoo",
					"--format=plain",
					"--no-password",
					"prod",
				})
				So(strings.Join(args, " "), ShouldNotContainSubstring, "secret")
			})

			Convey("The password should travel in the environment", func() {
				env := db.env()
				So(env, ShouldContain, "PGPASSWORD=it's secret")
				So(env, ShouldContain, "PGCONNECT_TIMEOUT=10")
			})
		})

		if runtime.GOOS == "windows" {
			return
		}

		tempDir, err := os.MkdirTemp("", "pg_dump_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		Convey("When the dump utility succeeds", func() {
			cfg.DumpBinary = writeScript(tempDir, "pg_dump", `echo "-- dump $*"; echo "-- password $PGPASSWORD"`)
			var out bytes.Buffer
			err := db.Dump(context.Background(), &out)

			Convey("Its output should be streamed into the writer", func() {
				So(err, ShouldBeNil)
				So(out.String(), ShouldEqual,
					"-- dump --host=db.internal --port=5433 --username=odoo --format=plain --no-password prod\n"+
						"-- password it's secret\n")
			})
		})

		Convey("When the dump utility exits with an error", func() {
			cfg.DumpBinary = writeScript(tempDir, "pg_dump", `echo 'pg_dump: error: database "prod" does not exist' >&2; exit 3`)
			err := db.Dump(context.Background(), &bytes.Buffer{})

			Convey("It should return DumpProcessError with the exit code and stderr", func() {
				var dumpErr *domain.DumpProcessError
				So(errors.As(err, &dumpErr), ShouldBeTrue)
				So(dumpErr.ExitCode, ShouldEqual, 3)
				So(dumpErr.Missing, ShouldBeFalse)
				So(dumpErr.Stderr, ShouldEqual, `pg_dump: error: database "prod" does not exist`)
			})
		})

		Convey("When the dump utility is missing", func() {
			cfg.DumpBinary = filepath.Join(tempDir, "no-such-pg_dump")
			err := db.Dump(context.Background(), &bytes.Buffer{})

			Convey("It should say so", func() {
				var dumpErr *domain.DumpProcessError
				So(errors.As(err, &dumpErr), ShouldBeTrue)
				So(dumpErr.Missing, ShouldBeTrue)
			})
		})

		Convey("When the context ends during the dump", func() {
			cfg.DumpBinary = writeScript(tempDir, "pg_dump", `echo "-- started"; exec sleep 30`)
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			start := time.Now()
			err := db.Dump(ctx, &bytes.Buffer{})

			Convey("It should stop the process and return the context error", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(time.Since(start), ShouldBeLessThan, 10*time.Second)
			})
		})
	})
}

func TestPostgreSQLConnection(t *testing.T) {
	Convey("Given a PostgreSQL database backed by sqlmock", t, func() {
		mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		So(err, ShouldBeNil)

		db := NewPostgreSQL(testConfig())
		var dsns []string
		db.openDB = func(dsn string) (*sql.DB, error) {
			dsns = append(dsns, dsn)
			return mockDB, nil
		}

		Convey("Ping method", func() {
			Convey("When the server accepts the connection", func() {
				mock.ExpectPing()
				mock.ExpectClose()
				err := db.Ping(context.Background())

				Convey("It should succeed against the target database", func() {
					So(err, ShouldBeNil)
					So(dsns[0], ShouldContainSubstring, "dbname='prod'")
					So(dsns[0], ShouldContainSubstring, `password='it\'s secret'`)
					So(dsns[0], ShouldContainSubstring, "port='5433'")
					So(mock.ExpectationsWereMet(), ShouldBeNil)
				})
			})

			Convey("When authentication fails", func() {
				mock.ExpectPing().WillReturnError(&pq.Error{Code: "28P01", Message: "password authentication failed for user \"odoo\""})
				mock.ExpectClose()
				err := db.Ping(context.Background())

				Convey("It should return ConnectionError with the server code", func() {
					var connErr *domain.ConnectionError
					So(errors.As(err, &connErr), ShouldBeTrue)
					So(connErr.Code, ShouldEqual, "invalid_password")
					So(connErr.Host, ShouldEqual, "db.internal")
					So(err.Error(), ShouldContainSubstring, "password authentication failed")
					So(mock.ExpectationsWereMet(), ShouldBeNil)
				})
			})

			Convey("When the driver cannot be opened", func() {
				db.openDB = func(string) (*sql.DB, error) { return nil, errors.New("unknown driver") }
				err := db.Ping(context.Background())

				Convey("It should return ConnectionError", func() {
					var connErr *domain.ConnectionError
					So(errors.As(err, &connErr), ShouldBeTrue)
				})
			})
		})

		Convey("ListDatabases method", func() {
			Convey("When the server returns databases", func() {
				mock.ExpectQuery(regexp.QuoteMeta(listDatabasesQuery)).
					WillReturnRows(sqlmock.NewRows([]string{"datname"}).AddRow("postgres").AddRow("prod").AddRow("staging"))
				mock.ExpectClose()
				names, err := db.ListDatabases(context.Background())

				Convey("It should list them through the maintenance database", func() {
					So(err, ShouldBeNil)
					So(names, ShouldResemble, []string{"postgres", "prod", "staging"})
					So(dsns[0], ShouldContainSubstring, "dbname='postgres'")
					So(mock.ExpectationsWereMet(), ShouldBeNil)
				})
			})

			Convey("When the query fails", func() {
				mock.ExpectQuery(regexp.QuoteMeta(listDatabasesQuery)).WillReturnError(errors.New("connection refused"))
				mock.ExpectClose()
				_, err := db.ListDatabases(context.Background())

				Convey("It should return ConnectionError", func() {
					var connErr *domain.ConnectionError
					So(errors.As(err, &connErr), ShouldBeTrue)
					So(err.Error(), ShouldContainSubstring, "connection refused")
				})
			})
		})
	})
}

func TestTailBuffer(t *testing.T) {
	Convey("Given a tailBuffer", t, func() {
		buf := &tailBuffer{limit: 8}

		Convey("It should keep only the last bytes written", func() {
			n, err := buf.Write([]byte("0123456"))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 7)
			buf.Write([]byte("789"))
			So(buf.String(), ShouldEqual, "23456789")

			n, _ = buf.Write([]byte("abcdefghijkl"))
			So(n, ShouldEqual, 12)
			So(buf.String(), ShouldEqual, "efghijkl")
		})
	})
}
