package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get, set, or unset a relayq configuration option",
}

var configGetCmd = &cobra.Command{
	Use:   "get [option]",
	Short: "Print one option's value, or every option if none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  doConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <option> <value>",
	Short: "Set a configuration option",
	Args:  cobra.ExactArgs(2),
	RunE:  doConfigSet,
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <option>",
	Short: "Remove a configuration option, reverting to the server default",
	Args:  cobra.ExactArgs(1),
	RunE:  doConfigUnset,
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configUnsetCmd)
}

func doConfigGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		all, err := cl.ConfigAll(ctx)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s=%v\n", k, all[k])
		}
		return nil
	}

	value, ok, err := cl.ConfigGet(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s is unset\n", args[0])
		return nil
	}
	fmt.Println(value)
	return nil
}

func doConfigSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}
	return cl.ConfigSet(ctx, args[0], args[1])
}

func doConfigUnset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}
	return cl.ConfigUnset(ctx, args[0])
}
