// Package docqa answers questions over a local document corpus using
// retrieval-augmented generation: documents are chunked, embedded, and
// indexed once; questions are expanded into variants, matched against the
// index, and answered by a generative model grounded in the retrieved
// chunks.
//
// Minimal usage:
//
//	client, err := docqa.New(
//		docqa.WithSQLite("data"),
//		docqa.WithOpenAI(os.Getenv("OPENAI_API_KEY"), "https://api.openai.com/v1"),
//		docqa.WithEmbeddingModel("text-embedding-3-small", 1536),
//		docqa.WithGenerationModel("gpt-4o-mini", 0.2),
//		docqa.WithSources("./docs"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Ingest(ctx); err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(client.Answer(ctx, "how do I rotate credentials?"))
package docqa
