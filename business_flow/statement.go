package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cotizabot/cotizabot/models"
	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// StatementExport is a rendered account statement
type StatementExport struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
	// Location is set when the statement was archived.
	Location string `json:"location,omitempty"`
}

func (b *BillingFlowImpl) ExportStatement(ctx context.Context, brokerID uint, metadata *ClientMetadata) (*StatementExport, error) {
	statement, err := b.GetStatement(ctx, brokerID)
	if err != nil {
		return nil, err
	}

	generatedAt := b.now().In(b.loc)
	content, err := RenderStatementXLSX(statement, b.loc, generatedAt)
	if err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write statement file", err)
	}

	export := &StatementExport{
		FileName:    fmt.Sprintf("statement_%s_%s.xlsx", statement.Account.AccountNumber, generatedAt.Format("20060102")),
		ContentType: xlsxContentType,
		Content:     content,
	}

	if b.store != nil {
		key := fmt.Sprintf("%s/%s", statement.Account.AccountNumber, export.FileName)
		location, err := b.store.Put(ctx, key, content, xlsxContentType)
		if err != nil {
			// The caller still gets the file
			b.logger.Warn("failed to archive statement", "account_number", statement.Account.AccountNumber, "error", err)
		} else {
			export.Location = location
		}
	}

	msg := fmt.Sprintf("Exported statement of account %s with %d entries", statement.Account.AccountNumber, len(statement.Transactions))
	createAuditLog(ctx, b.auditRepo, b.logger, auditSubject{BrokerID: &brokerID, AccountID: &statement.Account.ID},
		models.AuditActionStatementExported, msg, true, nil, map[string]any{"location": export.Location}, metadata)

	return export, nil
}

// RenderStatementXLSX writes a two sheet workbook: the account summary and the ledger
func RenderStatementXLSX(statement *Statement, loc *time.Location, generatedAt time.Time) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	const summarySheet = "Summary"
	const ledgerSheet = "Ledger"

	if err := xl.SetSheetName(xl.GetSheetName(0), summarySheet); err != nil {
		return nil, err
	}
	if _, err := xl.NewSheet(ledgerSheet); err != nil {
		return nil, err
	}

	account := statement.Account
	planName := ""
	if statement.Plan != nil {
		planName = statement.Plan.Name
	}
	graceEnd := ""
	if account.GracePeriodEnd != nil {
		graceEnd = account.GracePeriodEnd.In(loc).Format(time.RFC3339)
	}

	summary := [][]any{
		{"Account number", account.AccountNumber},
		{"Broker ID", account.BrokerID},
		{"Plan", planName},
		{"Status", string(account.AccountStatus)},
		{"Current balance", account.CurrentBalance.InexactFloat64()},
		{"Currency", account.Currency},
		{"Next due date", account.NextDueDate.In(loc).Format("2006-01-02")},
		{"Grace period end", graceEnd},
		{"Generated at", generatedAt.Format(time.RFC3339)},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := xl.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}

	header := []string{"id", "created_at", "type", "description", "reference_number", "amount", "balance_after", "due_date", "created_by"}
	if err := xl.SetSheetRow(ledgerSheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, entry := range statement.Transactions {
		reference := ""
		if entry.ReferenceNumber != nil {
			reference = *entry.ReferenceNumber
		}
		dueDate := ""
		if entry.DueDate != nil {
			dueDate = entry.DueDate.In(loc).Format("2006-01-02")
		}
		createdBy := ""
		if entry.CreatedBy != nil {
			createdBy = *entry.CreatedBy
		}

		record := []any{
			strconv.FormatUint(uint64(entry.ID), 10),
			entry.CreatedAt.In(loc).Format(time.RFC3339),
			string(entry.Type),
			entry.Description,
			reference,
			entry.Amount.InexactFloat64(),
			entry.BalanceAfter.InexactFloat64(),
			dueDate,
			createdBy,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(ledgerSheet, cell, &record); err != nil {
			return nil, err
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
