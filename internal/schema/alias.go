// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"regexp"
	"strings"

	"github.com/go-openapi/inflect"
)

var reCamelBoundary = regexp.MustCompile(`(?:[a-z0-9])(?:[A-Z])`)

// toSnake converts CamelCase identifiers to snake_case.
func toSnake(name string) string {
	out := reCamelBoundary.ReplaceAllStringFunc(name, func(m string) string {
		return m[:1] + "_" + m[1:]
	})
	return strings.ToLower(out)
}

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }

// columnChinese maps identifier parts to their Chinese equivalents so that
// questions asked in Chinese still hit the right columns.
var columnChinese = map[string]string{
	"customer": "客户", "id": "编号", "name": "名称", "email": "邮箱",
	"phone": "电话", "address": "地址", "city": "城市", "country": "国家",
	"date": "日期", "time": "时间", "price": "价格", "total": "总计",
	"quantity": "数量", "amount": "金额", "order": "订单", "product": "产品",
	"invoice": "发票", "employee": "员工", "artist": "艺术家", "album": "专辑",
	"track": "曲目", "genre": "流派", "playlist": "播放列表", "first": "名",
	"last": "姓", "company": "公司", "fax": "传真", "state": "州",
	"postal": "邮编", "code": "代码", "support": "客服", "rep": "代表",
	"birth": "生日", "hire": "入职", "title": "职位", "reports": "汇报",
	"billing": "账单", "unit": "单位", "media": "媒体", "type": "类型",
	"composer": "作曲", "milliseconds": "毫秒", "bytes": "字节",
}

// tableChinese maps table name fragments to usual Chinese phrasings. Longer
// fragments are matched first so invoiceline wins over invoice.
var tableChinese = []struct {
	key     string
	aliases []string
}{
	{"playlisttrack", []string{"播放列表曲目"}},
	{"invoiceline", []string{"发票明细", "订单明细", "订单项"}},
	{"mediatype", []string{"媒体类型", "格式"}},
	{"customer", []string{"客户", "顾客", "用户"}},
	{"employee", []string{"员工", "雇员", "职员"}},
	{"artist", []string{"艺术家", "歌手", "艺人"}},
	{"album", []string{"专辑", "唱片"}},
	{"track", []string{"曲目", "歌曲", "音轨"}},
	{"genre", []string{"流派", "类型", "风格"}},
	{"playlist", []string{"播放列表", "歌单"}},
	{"invoice", []string{"发票", "订单", "账单", "销售"}},
}

// columnAliases generates the lookup aliases for a column name, e.g.
// CustomerId -> customerid, customer_id, 客户编号.
func columnAliases(name string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(a string) {
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}

	add(strings.ToLower(name))
	snake := toSnake(name)
	add(snake)

	parts := strings.Split(snake, "_")
	var zh strings.Builder
	for _, p := range parts {
		if c, ok := columnChinese[p]; ok {
			zh.WriteString(c)
		} else {
			zh.WriteString(p)
		}
	}
	if zh.String() != strings.ReplaceAll(snake, "_", "") {
		add(zh.String())
	}
	return out
}

// tableAliases generates lookup aliases for a table name, including the
// singular/plural counterpart and Chinese phrasings.
func tableAliases(name string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(a string) {
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}

	lower := strings.ToLower(name)
	add(lower)
	add(toSnake(name))
	add(strings.ToLower(inflect.Singularize(lower)))
	add(strings.ToLower(inflect.Pluralize(lower)))

	for _, m := range tableChinese {
		if strings.Contains(lower, m.key) {
			for _, a := range m.aliases {
				add(a)
			}
			break
		}
	}
	return out
}
