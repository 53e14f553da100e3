package drive

import (
	"context"
	"iter"

	drive "google.golang.org/api/drive/v3"
)

// Files lazily lists the files matching query, fetching the next page only
// when the previous one is exhausted. Each call of the returned sequence
// starts a new listing. A failure is yielded once as the final element.
func Files(ctx context.Context, client Client, query string) iter.Seq2[*drive.File, error] {
	return func(yield func(*drive.File, error) bool) {
		var pageToken string

		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)

				return
			}

			page, err := client.ListFiles(ctx, query, pageToken)
			if err != nil {
				yield(nil, &ProviderError{Op: "list files", Err: err})

				return
			}

			for _, f := range page.Files {
				if !yield(f, nil) {
					return
				}
			}

			if page.NextPageToken == "" {
				return
			}

			pageToken = page.NextPageToken
		}
	}
}
