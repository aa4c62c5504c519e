package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// Offline dump of the relay's BadgerDB. Message content is shown as stored,
// so direct and group rows come out as iv:ciphertext hex.
func main() {
	dbPath := flag.String("db", "./badger", "Path to badger DB")
	prefix := flag.String("prefix", "", "Prefix to scan (msg:, grpmsg:, call:, chat:, chatpair:, grpmember:, fcm:); empty scans everything")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Timestamp", "Who", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				table.Append(describe(key, v))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func describe(key string, value []byte) []string {
	switch {
	case strings.HasPrefix(key, "msg:"), strings.HasPrefix(key, "grpmsg:"):
		var row struct {
			SenderID string    `json:"senderId"`
			Content  string    `json:"content"`
			At       time.Time `json:"at"`
		}
		if err := json.Unmarshal(value, &row); err != nil {
			return []string{key, "MESSAGE", "", "", "unmarshal failed: " + err.Error()}
		}
		return []string{key, "MESSAGE", row.At.Format(time.RFC3339), row.SenderID, truncate(row.Content, 48)}

	case strings.HasPrefix(key, "call:"):
		var row struct {
			CallerID  string    `json:"callerId"`
			CalleeID  string    `json:"calleeId"`
			Status    string    `json:"status"`
			UpdatedAt time.Time `json:"updatedAt"`
		}
		if err := json.Unmarshal(value, &row); err != nil {
			return []string{key, "CALL", "", "", "unmarshal failed: " + err.Error()}
		}
		who := fmt.Sprintf("%s -> %s", row.CallerID, row.CalleeID)
		return []string{key, "CALL", row.UpdatedAt.Format(time.RFC3339), who, row.Status}

	case strings.HasPrefix(key, "chat:"):
		var row struct {
			ParticipantA string    `json:"participantA"`
			ParticipantB string    `json:"participantB"`
			CreatedAt    time.Time `json:"createdAt"`
		}
		if err := json.Unmarshal(value, &row); err != nil {
			return []string{key, "CHAT", "", "", "unmarshal failed: " + err.Error()}
		}
		who := fmt.Sprintf("%s / %s", row.ParticipantA, row.ParticipantB)
		return []string{key, "CHAT", row.CreatedAt.Format(time.RFC3339), who, ""}

	case strings.HasPrefix(key, "chatpair:"):
		return []string{key, "CHATPAIR", "", "", string(value)}

	case strings.HasPrefix(key, "grpmember:"):
		return []string{key, "MEMBER", "", "", ""}

	case strings.HasPrefix(key, "fcm:"):
		return []string{key, "TOKEN", "", strings.TrimPrefix(key, "fcm:"), truncate(string(value), 24)}

	default:
		return []string{key, "RAW", "", "", truncate(string(value), 48)}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	return badger.Open(opts)
}
