package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func find(t *testing.T, root *cobra.Command, args ...string) *cobra.Command {
	t.Helper()
	cmd, _, err := root.Find(args)
	require.NoError(t, err)
	return cmd
}

func TestCommandTree(t *testing.T) {
	root := &cobra.Command{Use: "testbridge"}
	root.AddCommand(ServeCmd(), MigrateCmd(), StatsCmd(), UserCmd())

	assert.Equal(t, "serve", find(t, root, "serve").Name())
	assert.NotNil(t, find(t, root, "serve").Flags().Lookup("port"))
	assert.Equal(t, "migrate", find(t, root, "migrate").Name())

	rebuild := find(t, root, "stats", "rebuild")
	assert.Equal(t, "rebuild", rebuild.Name())
	assert.NotNil(t, rebuild.Flags().Lookup("project"))

	create := find(t, root, "user", "create-superuser")
	for _, name := range []string{"username", "email", "password"} {
		assert.NotNil(t, create.Flags().Lookup(name), name)
	}
}

func TestCreateSuperuserRequiresFlags(t *testing.T) {
	cmd := UserCmd()
	cmd.SetArgs([]string{"create-superuser", "--email", "a@example.com"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
