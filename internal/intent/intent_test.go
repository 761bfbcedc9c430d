// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"查询所有客户", TypeQuery},
		{"统计每个城市的客户数量", TypeQuery},
		{"What are the top 10 customers by revenue?", TypeQuery},
		{"how many invoices were issued last month", TypeQuery},
		{"你好", TypeChat},
		{"你好，查询客户数量", TypeQuery},
		{"你是谁", TypeChat},
		{"thanks", TypeChat},
		{"再见", TypeChat},
		{"嗯", TypeChat},
		{"那最高的呢", TypeQuery},
	}

	var c KeywordClassifier
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			d := c.Classify(tt.question, nil)
			assert.Equal(t, tt.want, d.Type)
		})
	}
}

func TestClassifyMetadata(t *testing.T) {
	var c KeywordClassifier
	d := c.Classify("查询所有客户", nil)
	assert.True(t, d.HasKeywords)
	assert.Equal(t, 6, d.QuestionLength)
	assert.False(t, d.ParsedAt.IsZero())
	assert.False(t, d.IsChat())
}
