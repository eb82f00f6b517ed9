package repository

import (
	"errors"
	"fmt"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/ports"
)

// storeErr converts a DocumentStore error into the domain taxonomy.
func storeErr(op, path string, err error) error {
	if errors.Is(err, ports.ErrDocumentNotFound) {
		return entities.NotFoundf("%s not found", path)
	}
	var domainErr *entities.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return entities.StoreError(fmt.Sprintf("%s %s", op, path), err)
}

// commentDocument is the stored shape of a comment; the key is the id.
func commentDocument(c *entities.Comment) entities.Comment {
	return entities.Comment{Name: c.Name, Text: c.Text, Date: c.Date.UTC()}
}

func decodeComments(docs []ports.Document) ([]entities.Comment, error) {
	comments := make([]entities.Comment, 0, len(docs))
	for i := range docs {
		var c entities.Comment
		if err := docs[i].Decode(&c); err != nil {
			return nil, fmt.Errorf("decode comment %s: %w", docs[i].Path, err)
		}
		c.ID = docs[i].Key
		comments = append(comments, c)
	}
	return comments, nil
}
