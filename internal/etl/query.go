package etl

import (
	"fmt"
	"strings"
	"time"
)

// Mirrors are installers that replicate the whole index rather than serving
// real users. Their traffic is excluded from every category except the
// with_mirrors overall counts.
var Mirrors = []string{"bandersnatch", "z3c.pypimirror", "Artifactory", "devpi"}

// Systems is the set of operating systems tracked by name. Anything else is
// bucketed as "other".
var Systems = []string{"Windows", "Linux", "Darwin"}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "'" + strings.ReplaceAll(item, "'", "\\'") + "'"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

// BuildDownloadQuery returns the warehouse query producing the per-package
// download counts for one day. Each result row carries a category_label
// naming the destination table, so a single scan over the raw events feeds
// all four count tables.
func BuildDownloadQuery(date string) (string, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", date, err)
	}

	mirrors := quoteList(Mirrors)
	systems := quoteList(Systems)

	query := fmt.Sprintf(`
WITH dls AS (
    SELECT
        package,
        installer_name AS installer,
        python_version,
        system_name AS system
    FROM file_downloads
    WHERE toDate(timestamp) = '%[1]s'
      AND (match(python_version, '^[0-9]\.[0-9]+') OR python_version IS NULL)
)
SELECT
    package,
    'python_major' AS category_label,
    extract(python_version, '^[0-9]+') AS category,
    count() AS downloads
FROM dls
WHERE installer NOT IN %[2]s
GROUP BY package, category
UNION ALL
SELECT
    package,
    'python_minor' AS category_label,
    extract(python_version, '^[0-9]+\.[0-9]+') AS category,
    count() AS downloads
FROM dls
WHERE installer NOT IN %[2]s
GROUP BY package, category
UNION ALL
SELECT
    package,
    'overall' AS category_label,
    'with_mirrors' AS category,
    count() AS downloads
FROM dls
GROUP BY package, category
UNION ALL
SELECT
    package,
    'overall' AS category_label,
    'without_mirrors' AS category,
    count() AS downloads
FROM dls
WHERE installer NOT IN %[2]s
GROUP BY package, category
UNION ALL
SELECT
    package,
    'system' AS category_label,
    CASE WHEN system NOT IN %[3]s THEN 'other' ELSE system END AS category,
    count() AS downloads
FROM dls
WHERE installer NOT IN %[2]s
GROUP BY package, category`, date, mirrors, systems)

	return query, nil
}
