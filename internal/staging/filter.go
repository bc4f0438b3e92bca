package staging

import "pkgstats/pkg/models"

// FilterRows returns the rows that pass the staging validation rules,
// leaving the input untouched. Dropped rows are a deliberate lossy policy:
// ambiguous upstream data is discarded rather than stored.
//
// Rules:
//   - packages longer than models.MaxPackageLength are dropped
//   - for the version tables, an empty or lone-separator category is dropped
//     (a NULL version is valid data and arrives here as the null sentinel)
func FilterRows(table string, rows []models.DownloadCount) []models.DownloadCount {
	valid := make([]models.DownloadCount, 0, len(rows))
	for _, row := range rows {
		if len(row.Package) > models.MaxPackageLength {
			continue
		}
		if table == models.TablePythonMajor || table == models.TablePythonMinor {
			if row.Category == "" || row.Category == "." {
				continue
			}
		}
		valid = append(valid, row)
	}
	return valid
}
