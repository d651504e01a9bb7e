package extract

import "github.com/sells-group/listing-trust/internal/textutil"

func foldFor(s string) string { return textutil.Fold(s) }
