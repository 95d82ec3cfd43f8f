// internal/export/export.go
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rovshanmuradov/solana-tracker/internal/storage/models"
	"go.uber.org/zap"
)

// Format represents the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Options configures which transactions are exported and where.
type Options struct {
	Format       Format
	StartTime    time.Time
	EndTime      time.Time
	WalletFilter string // Filter by wallet address
	TypeFilter   string // Filter by transaction type (buy/sell)
	OutputDir    string
}

// Exporter writes persisted wallet transactions to disk for offline analysis.
type Exporter struct {
	logger *zap.Logger
}

func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("export")}
}

// Export writes the matching transactions and returns the output path.
func (e *Exporter) Export(transactions []*models.Transaction, options Options) (string, error) {
	filtered := e.filter(transactions, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no transactions match the export criteria")
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].BlockTime.Before(filtered[j].BlockTime)
	})

	filename := e.generateFilename(options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = e.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = e.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("Transactions exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func (e *Exporter) filter(transactions []*models.Transaction, options Options) []*models.Transaction {
	var filtered []*models.Transaction

	for _, tx := range transactions {
		if !options.StartTime.IsZero() && tx.BlockTime.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && tx.BlockTime.After(options.EndTime) {
			continue
		}
		if options.WalletFilter != "" && (tx.Wallet == nil || tx.Wallet.Address != options.WalletFilter) {
			continue
		}
		if options.TypeFilter != "" && tx.TransactionType != options.TypeFilter {
			continue
		}
		filtered = append(filtered, tx)
	}

	return filtered
}

func (e *Exporter) generateFilename(options Options) string {
	timestamp := time.Now().Format("20060102_150405")

	prefix := "transactions_all"
	if options.TypeFilter != "" {
		prefix = fmt.Sprintf("transactions_%s", options.TypeFilter)
	}
	if options.WalletFilter != "" && len(options.WalletFilter) >= 8 {
		prefix += "_" + options.WalletFilter[:8]
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

func csvHeaders() []string {
	return []string{
		"signature", "block_time", "wallet", "type",
		"sol_spent", "sol_received", "usd_spent", "usd_received", "tokens",
	}
}

func csvRow(tx *models.Transaction) []string {
	wallet := ""
	if tx.Wallet != nil {
		wallet = tx.Wallet.Address
	}

	tokens := ""
	for i, op := range tx.Operations {
		if i > 0 {
			tokens += ";"
		}
		symbol := strconv.FormatUint(uint64(op.TokenID), 10)
		if op.Token != nil {
			symbol = op.Token.Symbol
		}
		tokens += fmt.Sprintf("%s=%s", symbol, strconv.FormatFloat(op.Amount, 'f', -1, 64))
	}

	return []string{
		tx.Signature,
		tx.BlockTime.UTC().Format(time.RFC3339),
		wallet,
		tx.TransactionType,
		strconv.FormatFloat(tx.SolSpent, 'f', -1, 64),
		strconv.FormatFloat(tx.SolReceived, 'f', -1, 64),
		strconv.FormatFloat(tx.USDSpent, 'f', -1, 64),
		strconv.FormatFloat(tx.USDReceived, 'f', -1, 64),
		tokens,
	}
}

func (e *Exporter) exportToCSV(transactions []*models.Transaction, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(csvHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, tx := range transactions {
		if err := writer.Write(csvRow(tx)); err != nil {
			return fmt.Errorf("failed to write transaction: %w", err)
		}
	}

	return nil
}

func (e *Exporter) exportToJSON(transactions []*models.Transaction, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime       time.Time             `json:"export_time"`
		TransactionCount int                   `json:"transaction_count"`
		Transactions     []*models.Transaction `json:"transactions"`
	}{
		ExportTime:       time.Now(),
		TransactionCount: len(transactions),
		Transactions:     transactions,
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
