package ml

// TrainArtifact runs the full training recipe on table: encode, stratified
// 80/20 split, fit the scaler and forest, then score the held-out rows.
func TrainArtifact(table *Table, config ForestConfig) (*Artifact, error) {
	encoder := &Encoder{}
	features, labels, err := encoder.FitTransform(table)
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := StratifiedSplit(labels, TestRatio, SplitSeed)
	if err != nil {
		return nil, err
	}
	trainX, trainY := Subset(features, labels, trainIdx)
	testX, testY := Subset(features, labels, testIdx)

	model := NewPipeline(config)
	if err := model.Train(trainX, trainY); err != nil {
		return nil, err
	}
	evaluation, err := Evaluate(model, testX, testY)
	if err != nil {
		return nil, err
	}
	return NewArtifact(encoder, model, evaluation, len(labels)), nil
}
