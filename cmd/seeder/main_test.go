package main

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDir_RunsFilesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"002_campaigns.sql": {Data: []byte("INSERT INTO connection_campaigns VALUES (1)")},
		"001_owners.sql":    {Data: []byte("INSERT INTO owners VALUES (1)")},
		"README.md":         {Data: []byte("ignored")},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO owners")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO connection_campaigns")).WillReturnResult(sqlmock.NewResult(0, 1))

	var applied []string
	err = applyDir(context.Background(), db, fsys, func(name string) { applied = append(applied, name) })

	require.NoError(t, err)
	assert.Equal(t, []string{"001_owners.sql", "002_campaigns.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDir_StopsAtFirstFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT broken")},
		"002_b.sql": {Data: []byte("SELECT 1")},
	}
	mock.ExpectExec("SELECT broken").WillReturnError(errors.New("syntax error"))

	err = applyDir(context.Background(), db, fsys, func(string) {})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_a.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDir_EmptyDir(t *testing.T) {
	err := applyDir(context.Background(), nil, fstest.MapFS{}, func(string) {})
	assert.Error(t, err)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"migrate", "seed"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
