//go:build js && wasm

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"syscall/js"

	"quotesearch/internal/adapter/embedding"
	"quotesearch/internal/adapter/memstore"
	"quotesearch/internal/domain"
	"quotesearch/internal/render"
	"quotesearch/internal/usecase"
)

const dimension = 256

var (
	embedder *embedding.HashEmbedder
	index    *memstore.Index
	pipeline *usecase.RetrievePipeline
	upsert   *usecase.UpsertUseCase
)

func init() {
	var err error
	embedder, err = embedding.NewHashEmbedder(dimension)
	if err != nil {
		panic(err)
	}
	reset()
}

func reset() {
	index = memstore.NewIndex(dimension)
	p, err := usecase.NewRetrievePipeline(embedder, index, usecase.RetrieveOptions{
		DefaultTopK:     domain.DefaultTopK,
		MaxTopK:         100,
		TrustIndexOrder: true,
	}, nil)
	if err != nil {
		panic(err)
	}
	pipeline = p
	upsert = usecase.NewUpsertUseCase(embedder, index, nil)
}

func main() {
	c := make(chan struct{})

	js.Global().Set("quoteUpsert", js.FuncOf(upsertRecords))
	js.Global().Set("quoteRetrieve", js.FuncOf(retrieve))
	js.Global().Set("quoteClear", js.FuncOf(clearIndex))
	js.Global().Set("quoteStats", js.FuncOf(getStats))

	<-c
}

// upsertRecords(namespace, recordsJSON)
func upsertRecords(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeError("usage: quoteUpsert(namespace, recordsJSON)")
	}

	var inputs []domain.RecordInput
	if err := json.Unmarshal([]byte(args[1].String()), &inputs); err != nil {
		return makeError("invalid records: " + err.Error())
	}

	n, err := upsert.Upsert(context.Background(), args[0].String(), inputs, nil)
	if err != nil {
		return makeError("upsert failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"success": true,
		"count":   n,
	})
}

// retrieve(text, [num], [namespace]) returns the JSON rendering of the result.
func retrieve(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: quoteRetrieve(text, [num], [namespace])")
	}

	q := domain.Query{Text: args[0].String()}
	if len(args) > 1 && args[1].Type() == js.TypeNumber {
		q.TopK = args[1].Int()
	}
	if len(args) > 2 {
		q.Namespace = args[2].String()
	}

	result, err := pipeline.Retrieve(context.Background(), q)
	if err != nil {
		return makeError(domain.DetailOf(err))
	}

	var buf bytes.Buffer
	if err := render.JSON(&buf, result); err != nil {
		return makeError("render failed: " + err.Error())
	}
	return buf.String()
}

func clearIndex(this js.Value, args []js.Value) interface{} {
	reset()
	return makeResult(map[string]interface{}{
		"success": true,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	stats, _ := index.Stats(context.Background())
	return makeResult(map[string]interface{}{
		"model":      embedder.ModelName(),
		"dimension":  stats.Dimension,
		"total":      stats.Total,
		"namespaces": stats.Namespaces,
	})
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
