package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fieldops/fieldsync"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue <entity-type> <operation> [entity-id]",
	Short: "Queue a record change for later synchronization",
	Long: `Queue a record change to replay against the records service on the
next drain. Entity types: case, person, evidence, casePerson, vehicle,
alert. Operations: create, update, delete.

For create operations the entity id may be omitted; a provisional
client-generated id is assigned.

Example:
  fieldsync queue case create --payload '{"caseNumber":"HQ-2026-000123","title":"Burglary","officerId":"officer-7"}'
  fieldsync queue person update person-42 --payload-file change.json
  fieldsync queue evidence delete evidence-9`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runQueue,
}

var (
	queuePayload     string
	queuePayloadFile string
)

func init() {
	queueCmd.Flags().StringVar(&queuePayload, "payload", "", "JSON object with the record fields being changed")
	queueCmd.Flags().StringVar(&queuePayloadFile, "payload-file", "", "Read the payload from a file instead")
}

func runQueue(cmd *cobra.Command, args []string) error {
	entityType := fieldsync.EntityType(args[0])
	if !entityType.IsValid() {
		return fmt.Errorf("unknown entity type %q (valid: %s)", args[0], strings.Join(entityTypeNames(), ", "))
	}

	op := fieldsync.Operation(args[1])
	if !op.IsValid() {
		return fmt.Errorf("unknown operation %q (valid: create, update, delete)", args[1])
	}

	entityID := ""
	if len(args) == 3 {
		entityID = args[2]
	}
	if entityID == "" && op != fieldsync.OpCreate {
		return fmt.Errorf("entity id is required for %s operations", op)
	}

	payload, err := resolvePayload()
	if err != nil {
		return err
	}

	client, err := newClient(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	entry, err := client.QueueChange(entityType, entityID, op, payload)
	if err != nil {
		return fmt.Errorf("queue change: %w", err)
	}

	return outputEntry(cmd, entry)
}

func resolvePayload() (json.RawMessage, error) {
	if queuePayload != "" && queuePayloadFile != "" {
		return nil, fmt.Errorf("--payload and --payload-file are mutually exclusive")
	}

	raw := queuePayload
	if queuePayloadFile != "" {
		data, err := os.ReadFile(queuePayloadFile)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		raw = string(data)
	}
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func entityTypeNames() []string {
	types := fieldsync.ValidEntityTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
