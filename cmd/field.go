package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/mix/pkg/mix"
)

var fieldCmd = &cobra.Command{
	Use:   "field <L:R | F>",
	Short: "Converts between the L:R notation and the packed F byte of a field specification",
	Long: `Converts between the L:R notation and the packed F byte (8*L+R) of a field specification.
If --value is passed, the selected field of a word holding that value is printed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value *int64
		if cmd.Flags().Changed("value") {
			v, err := cmd.Flags().GetInt64("value")
			if err != nil {
				return err
			}
			value = &v
		}

		return describeField(cmd.OutOrStdout(), args[0], value)
	},
}

func describeField(out io.Writer, arg string, value *int64) error {
	var (
		field  mix.FieldSpec
		packed mix.Byte
		err    error
	)

	if strings.Contains(arg, ":") {
		field, err = mix.ParseFieldSpec(arg)
		if err != nil {
			return err
		}

		packed, err = field.Byte()
		if err != nil {
			return err
		}
	} else {
		raw, err := strconv.ParseUint(arg, 10, 8)
		if err != nil {
			return eris.Wrapf(err, "expected L:R or a byte but got %q", arg)
		}

		packed, err = mix.NewByte(uint8(raw))
		if err != nil {
			return err
		}

		field = mix.FieldFromByte(packed)
		if err = field.Validate(); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "%s = %d\n", field, packed)

	if value != nil {
		word, err := mix.WordFromValue(*value)
		if err != nil {
			return err
		}

		part, err := word.Field(field)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s (%s) = %d\n", word, field, part.Value())
	}

	return nil
}

func init() {
	fieldCmd.Flags().Int64("value", 0, "word value to apply the field to")
	rootCmd.AddCommand(fieldCmd)
}
