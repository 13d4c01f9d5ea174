package migration

// Unit 一个版本化的迁移单元
// Name形如"015_media_entity_type"，数字前缀即版本号，由发现阶段解析。
// Upgrade与Downgrade都不保证幂等：对已迁移的结构重复执行Upgrade
// 应当报错（例如列已存在），Runner负责不重复调用。
// 单元内的执行顺序有意义：加NOT NULL约束前必须先完成数据回填。
type Unit struct {
	Name      string
	Upgrade   func(m Mutator) error
	Downgrade func(m Mutator) error
}

// Entry 发现阶段产出的带版本号的单元
type Entry struct {
	Version int
	Unit    *Unit
}
