package layout

import "errors"

// Layout ドメインのエラー定義
var (
	ErrLayoutNotFound         = errors.New("座席表が見つかりません")
	ErrLayoutNotPublished     = errors.New("座席表は公開されていません")
	ErrLayoutAlreadyPublished = errors.New("座席表は既に公開されています")
	ErrLayoutIDRequired       = errors.New("座席表IDは必須です")
	ErrEventIDRequired        = errors.New("イベントIDは必須です")
	ErrInvalidSeatUID         = errors.New("seat_uid は1〜32文字である必要があります")
	ErrDuplicateSeatUID       = errors.New("seat_uid が重複しています")
	ErrUnknownPriceTier       = errors.New("未定義の価格帯が参照されています")
	ErrEmptyGeometry          = errors.New("座席が1つもありません")
)
