package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"leadbridge/internal/crm"
	"leadbridge/internal/tenant/repository"
	"leadbridge/platform/apperr"
)

// Header aliases recognised when no explicit column mapping is given.
var (
	phoneHeaders = map[string]bool{"phone": true, "телефон": true, "tel": true, "номер": true}
	nameHeaders  = map[string]bool{"name": true, "имя": true, "fio": true, "фио": true}
)

// CSVRow is one parsed lead row.
type CSVRow struct {
	Name  string
	Phone string
	Extra map[string]string
}

// ParseLeadsCSV reads a header row plus lead rows. With a column
// mapping, CSV columns are renamed through it and everything else is
// dropped. Without one, phone and name are detected by header alias,
// falling back to the first two columns, and all other columns are
// kept as extra attributes. Any row missing name or phone fails the
// whole parse.
func ParseLeadsCSV(r io.Reader, columnMapping map[string]string) ([]CSVRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, apperr.BadRequest("invalid CSV format")
	}

	var rows []CSVRow
	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.BadRequest(fmt.Sprintf("row %d: invalid CSV format", rowNum))
		}

		cells := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(record) {
				cells[header] = record[i]
			}
		}

		row, err := parseRow(rowNum, headers, record, cells, columnMapping)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, apperr.BadRequest("no leads found in CSV file")
	}
	return rows, nil
}

func parseRow(rowNum int, headers, record []string, cells map[string]string, columnMapping map[string]string) (CSVRow, error) {
	row := CSVRow{Extra: make(map[string]string)}

	if len(columnMapping) > 0 {
		for csvColumn, fieldName := range columnMapping {
			value := strings.TrimSpace(cells[csvColumn])
			if value == "" {
				continue
			}
			switch fieldName {
			case "name":
				row.Name = value
			case "phone":
				row.Phone = value
			default:
				row.Extra[fieldName] = value
			}
		}
		if row.Name == "" || row.Phone == "" {
			return CSVRow{}, apperr.BadRequest(fmt.Sprintf("row %d: missing required fields (phone, name) in column mapping", rowNum))
		}
		return row, nil
	}

	for _, header := range headers {
		value := strings.TrimSpace(cells[header])
		key := strings.ToLower(strings.TrimSpace(header))
		switch {
		case phoneHeaders[key]:
			row.Phone = value
		case nameHeaders[key]:
			row.Name = value
		case value != "":
			row.Extra[header] = value
		}
	}

	// Headerless sheets: assume phone then name in the first columns.
	if (row.Phone == "" || row.Name == "") && len(record) >= 2 {
		if row.Phone == "" {
			row.Phone = strings.TrimSpace(record[0])
		}
		if row.Name == "" {
			row.Name = strings.TrimSpace(record[1])
		}
	}
	if row.Phone == "" || row.Name == "" {
		return CSVRow{}, apperr.BadRequest(fmt.Sprintf("row %d: missing required fields (phone, name)", rowNum))
	}
	return row, nil
}

const exportPageSize = 500

// Export writes the tenant's full lead list as semicolon-delimited
// CSV with a UTF-8 BOM, the dialect Excel expects in Russian locales.
// Status ids are resolved to display names when the portal answers.
func (s *Service) Export(ctx context.Context, tenantID int64, w io.Writer) error {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return err
	}

	mappings, err := s.tenants.ListMappings(ctx, tenant.ID, tenant.EntityType)
	if err != nil {
		s.log.DatabaseError("list field mappings", err)
		mappings = nil
	}

	statusNames := s.statusNameMap(ctx, tenant)

	store, err := s.stores.Open(ctx, tenantID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "open tenant store", err)
	}
	defer store.Close()

	var details []LeadDetail
	present := make(map[string]bool)
	for offset := 0; ; offset += exportPageSize {
		page, err := store.ListLeads(ctx, exportPageSize, offset)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "list leads", err)
		}
		for _, lead := range page {
			fields, err := store.ListLeadFields(ctx, lead.ID)
			if err != nil {
				return apperr.Wrap(apperr.KindInternal, "list lead fields", err)
			}
			for _, f := range fields {
				present[f.FieldName] = true
			}
			details = append(details, LeadDetail{Lead: lead, Fields: fields})
		}
		if len(page) < exportPageSize {
			break
		}
	}

	// Extra columns follow the mapping order, restricted to attributes
	// that actually occur.
	var extraColumns []string
	headers := []string{"Имя", "Телефон", "Статус", "Ответственный", "Bitrix24 ID", "Сумма сделки", "Стадия сделки", "Создан"}
	for _, m := range mappings {
		if !present[m.FieldName] {
			continue
		}
		extraColumns = append(extraColumns, m.FieldName)
		display := strings.TrimSpace(m.DisplayName)
		if display == "" {
			display = m.CRMFieldName
		}
		headers = append(headers, display)
	}

	// UTF-8 BOM so Excel picks the right encoding.
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return apperr.Wrap(apperr.KindInternal, "write export", err)
	}

	writer := csv.NewWriter(w)
	writer.Comma = ';'
	if err := writer.Write(headers); err != nil {
		return apperr.Wrap(apperr.KindInternal, "write export", err)
	}

	for _, detail := range details {
		lead := detail.Lead
		status := statusNew
		if lead.Status != nil && *lead.Status != "" {
			status = *lead.Status
			if name, ok := statusNames[status]; ok {
				status = name
			}
		}
		dealStage := valueOr(lead.DealStatusName, valueOr(lead.DealStatus, ""))

		row := []string{
			lead.Name,
			lead.Phone,
			status,
			valueOr(lead.AssignedByName, ""),
			valueOr(lead.RemoteID, ""),
			valueOr(lead.DealAmount, ""),
			dealStage,
			lead.CreatedAt.Format("2006-01-02 15:04:05"),
		}

		byName := make(map[string]string, len(detail.Fields))
		for _, f := range detail.Fields {
			byName[f.FieldName] = valueOr(f.FieldValue, "")
		}
		for _, column := range extraColumns {
			row = append(row, byName[column])
		}

		if err := writer.Write(row); err != nil {
			return apperr.Wrap(apperr.KindInternal, "write export", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return apperr.Wrap(apperr.KindInternal, "write export", err)
	}
	return nil
}

// statusNameMap loads the display names for the tenant's funnel.
// Portal failures degrade to raw status ids.
func (s *Service) statusNameMap(ctx context.Context, tenant repository.Tenant) map[string]string {
	if tenant.WebhookURL == nil || *tenant.WebhookURL == "" {
		return nil
	}
	client := s.crm.ClientFor(*tenant.WebhookURL)

	var (
		statuses []crm.Status
		err      error
	)
	if tenant.EntityType == "deal" {
		categoryID := 0
		if tenant.DealCategoryID != nil {
			categoryID = *tenant.DealCategoryID
		}
		statuses, err = client.DealStages(ctx, categoryID)
	} else {
		statuses, err = client.LeadStatuses(ctx)
	}
	if err != nil {
		s.log.CRMCallError("load status map", err)
		return nil
	}

	names := make(map[string]string, len(statuses))
	for _, st := range statuses {
		names[st.ID] = st.Name
	}
	return names
}

func valueOr(v *string, fallback string) string {
	if v != nil && *v != "" {
		return *v
	}
	return fallback
}
