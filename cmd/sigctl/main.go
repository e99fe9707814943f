package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "sigctl",
		Short:         "Operator tooling for the signing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("url", "http://localhost:8084", "signing service base url")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
	root.AddCommand(newWebhookCmd(out), newContractCmd(out))
	return root
}

type summary struct {
	Command      string `json:"command"`
	Status       string `json:"status"`
	HTTPStatus   int    `json:"http_status,omitempty"`
	ContractID   string `json:"contract_id,omitempty"`
	Correlation  string `json:"correlation,omitempty"`
	Event        string `json:"event,omitempty"`
	Derived      string `json:"derived_status,omitempty"`
	Reason       string `json:"reason,omitempty"`
	TimestampUTC string `json:"timestamp_utc"`
}

// report prints one JSON line and returns a non-nil error for FAIL so the
// process exits non-zero.
func report(out io.Writer, s summary, failure error) error {
	s.Status = "PASS"
	if failure != nil {
		s.Status = "FAIL"
		s.Reason = failure.Error()
	}
	s.TimestampUTC = time.Now().UTC().Format(time.RFC3339)
	b, _ := json.Marshal(s)
	fmt.Fprintln(out, string(b))
	return failure
}
